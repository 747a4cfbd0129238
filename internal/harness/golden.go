package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/persist/internal/ir"
)

// Snapshot renders the scenario's write log as canonical JSON, the golden
// file format. Rolled back statements are included and flagged.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	writes := make([]any, len(result.Log))
	for i, entry := range result.Log {
		writes[i] = entry.canonical()
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario": scenarioName,
		"writes":   writes,
	})
}

// LogHash returns the content hash of the result's write log.
func LogHash(result *Result) (string, error) {
	entries := make([]map[string]any, len(result.Log))
	for i, entry := range result.Log {
		entries[i] = entry.canonical()
	}
	return ir.WriteLogHash(entries)
}

// RunWithGolden executes a scenario and compares its write log against a
// golden file in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass. Test failure (via goldie)
// occurs if the log doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's write log against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
