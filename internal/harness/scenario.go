package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a write-path scenario: a schema, a set of named
// entities, and steps that each run one unit of work against a database.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema lists CUE schema files, relative to the scenario file.
	Schema []string `yaml:"schema"`

	// Setup holds SQL statements run on every database before the steps,
	// typically CREATE TABLE.
	Setup []string `yaml:"setup,omitempty"`

	// Entities declares the entities steps refer to by ref.
	Entities []EntityDecl `yaml:"entities"`

	// Steps run in order; each is one unit of work.
	Steps []Step `yaml:"steps"`

	// Assertions validate the write log and final state after all steps.
	// Supported types: write_count, write_order, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// RunID is an optional fixed run id. Defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// EntityDecl declares one entity. Relations name other entities by ref:
// a single ref for hasOne, belongsTo and refersTo, a list for hasMany and
// manyToMany.
type EntityDecl struct {
	Ref       string            `yaml:"ref"`
	Role      string            `yaml:"role"`
	Fields    map[string]any    `yaml:"fields,omitempty"`
	Relations map[string]RefSet `yaml:"relations,omitempty"`
}

// Step changes entities in memory, queues operations and runs the unit of
// work. Changes apply in the order set, link, unlink; then persists are
// queued before deletes.
type Step struct {
	// Set assigns fields: ref -> field -> value.
	Set map[string]map[string]any `yaml:"set,omitempty"`

	// Link attaches entities: ref -> relation -> refs. Single relations are
	// replaced, collections are appended to.
	Link map[string]map[string]RefSet `yaml:"link,omitempty"`

	// Unlink detaches entities: ref -> relation -> refs. Single relations
	// are cleared, collections lose the named items.
	Unlink map[string]map[string]RefSet `yaml:"unlink,omitempty"`

	Persist []string `yaml:"persist,omitempty"`
	Delete  []string `yaml:"delete,omitempty"`

	// Cascade applies to every queued operation. Defaults to true.
	Cascade *bool `yaml:"cascade,omitempty"`

	// FailAt makes the n-th statement of this step (1-based) fail in the
	// driver, which must surface as STORAGE_FAILURE.
	FailAt int `yaml:"fail_at,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// cascade reports the step's cascade flag.
func (s Step) cascade() bool {
	return s.Cascade == nil || *s.Cascade
}

// StepExpect specifies the expected run outcome.
type StepExpect struct {
	// Writes is the number of statements that reached a driver.
	Writes *int `yaml:"writes,omitempty"`

	// Error is the expected error code, e.g. ORDERING_FAILURE. Empty
	// means the run must succeed.
	Error string `yaml:"error,omitempty"`
}

// RefSet is one or more entity refs. It decodes from a scalar or a
// sequence; an explicit null leaves it empty.
type RefSet []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RefSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*r = RefSet{node.Value}
		return nil
	case yaml.SequenceNode:
		var refs []string
		if err := node.Decode(&refs); err != nil {
			return err
		}
		*r = refs
		return nil
	}
	return fmt.Errorf("line %d: expected a ref or a list of refs", node.Line)
}

// Assertion validates the write log or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "write_count": count committed writes, optionally by op and table
	// - "write_order": committed writes appear in this order
	// - "final_state": query a table and verify one row
	Type string `yaml:"type"`

	// Op and Table filter writes (write_count). Table also names the
	// queried table (final_state).
	Op    string `yaml:"op,omitempty"`
	Table string `yaml:"table,omitempty"`

	// Count is the expected number of writes (write_count) or of matching
	// rows (final_state without expect).
	Count *int `yaml:"count,omitempty"`

	// Writes lists "op table" entries in expected order (write_order).
	// Other writes may appear in between.
	Writes []string `yaml:"writes,omitempty"`

	// Database selects the database queried by final_state. Defaults to
	// "default".
	Database string `yaml:"database,omitempty"`

	// Where specifies column filters (final_state). nil matches IS NULL.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertWriteCount = "write_count"
	AssertWriteOrder = "write_order"
	AssertFinalState = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Schema paths are
// resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving schema paths relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, schemaPath := range scenario.Schema {
		if !filepath.IsAbs(schemaPath) && basePath != "" {
			scenario.Schema[i] = filepath.Join(basePath, schemaPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and every ref
// names a declared entity.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, schemaPath := range s.Schema {
		if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
			return fmt.Errorf("schema file not found: %s", schemaPath)
		}
	}

	refs := make(map[string]bool, len(s.Entities))
	for i, e := range s.Entities {
		if e.Ref == "" {
			return fmt.Errorf("entities[%d]: ref is required", i)
		}
		if e.Role == "" {
			return fmt.Errorf("entities[%d]: role is required", i)
		}
		if refs[e.Ref] {
			return fmt.Errorf("entities[%d]: duplicate ref %q", i, e.Ref)
		}
		refs[e.Ref] = true
	}
	for i, e := range s.Entities {
		for rel, targets := range e.Relations {
			if err := checkRefs(refs, targets...); err != nil {
				return fmt.Errorf("entities[%d].relations.%s: %w", i, rel, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(refs, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(refs map[string]bool, step Step) error {
	if err := checkRefs(refs, step.Persist...); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	if err := checkRefs(refs, step.Delete...); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	for ref := range step.Set {
		if err := checkRefs(refs, ref); err != nil {
			return fmt.Errorf("set: %w", err)
		}
	}
	for name, links := range map[string]map[string]map[string]RefSet{"link": step.Link, "unlink": step.Unlink} {
		for ref, rels := range links {
			if err := checkRefs(refs, ref); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			for rel, targets := range rels {
				if err := checkRefs(refs, targets...); err != nil {
					return fmt.Errorf("%s.%s.%s: %w", name, ref, rel, err)
				}
			}
		}
	}
	if step.FailAt < 0 {
		return fmt.Errorf("fail_at must be positive")
	}
	if step.Expect != nil && step.Expect.Writes != nil && *step.Expect.Writes < 0 {
		return fmt.Errorf("expect.writes must be non-negative")
	}
	return nil
}

func checkRefs(refs map[string]bool, names ...string) error {
	for _, name := range names {
		if !refs[name] {
			return fmt.Errorf("unknown entity ref %q", name)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertWriteCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for write_count", index)
		}
	case AssertWriteOrder:
		if len(a.Writes) == 0 {
			return fmt.Errorf("assertions[%d]: writes list is required for write_order", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 && a.Count == nil {
			return fmt.Errorf("assertions[%d]: expect or count is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
