package testutil

import "fmt"

// FixedRunIDGenerator returns the same run id every time, so repeated runs
// of a scenario log identical run ids.
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id. An empty id becomes
// "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run id.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}

// SequentialKeyGenerator returns version 7 shaped UUIDs built from a
// counter: 00000000-0000-7000-8000-000000000001, then ...002 and so on.
// Golden write logs of uuid-keyed roles stay stable across runs.
//
// Thread-safety: safe for concurrent use.
type SequentialKeyGenerator struct {
	seq *Sequence
}

// NewSequentialKeyGenerator creates a generator starting at 1.
func NewSequentialKeyGenerator() *SequentialKeyGenerator {
	return &SequentialKeyGenerator{seq: NewSequence()}
}

// Generate returns the next key.
func (g *SequentialKeyGenerator) Generate() string {
	return fmt.Sprintf("00000000-0000-7000-8000-%012x", g.seq.Next())
}
