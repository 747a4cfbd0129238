package ir

// Version constants for the schema IR and engine.
const (
	// IRVersion is the compiled schema format version.
	IRVersion = "1"

	// EngineVersion is the persist engine version.
	EngineVersion = "0.1.0"
)
