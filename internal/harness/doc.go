// Package harness runs write-path scenarios against real databases.
//
// The harness compiles a CUE schema, builds dynamic entities, and runs
// each step of a scenario as one unit of work. Every statement reaching a
// driver is recorded, so scenarios can assert on the write log, compare it
// with a golden file, and query the final database state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: user_profile
//	description: "Insert a user and a profile, then update the user"
//	schema:
//	  - schema.cue
//	setup:
//	  - CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT)
//	entities:
//	  - ref: u1
//	    role: user
//	    fields: { email: a@x.com }
//	    relations: { profile: p1 }
//	steps:
//	  - persist: [u1]
//	    expect: { writes: 2 }
//	  - set: { u1: { email: b@x.com } }
//	    unlink: { u1: { comments: [c1] } }
//	    persist: [u1]
//	    fail_at: 1
//	    expect: { error: STORAGE_FAILURE }
//	assertions:
//	  - type: write_count
//	    op: insert
//	    count: 2
//	  - type: write_order
//	    writes: ["insert users", "insert profiles"]
//	  - type: final_state
//	    table: users
//	    where: { id: 1 }
//	    expect: { email: a@x.com }
//
// # Assertion Types
//
//   - write_count: Counts committed writes, optionally filtered by op and table
//   - write_order: Verifies committed writes appear in the given order
//   - final_state: Queries a table and verifies one row, or counts rows
//
// # Deterministic Testing
//
// Run ids are fixed (scenario.run_id or "test-run-default") and uuid keys
// come from a counter, so identical scenarios produce identical logs.
// Each scenario gets fresh databases; by default one in-memory SQLite
// database per schema database name.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/user_profile.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range result.Errors {
//	    log.Println(e)
//	}
package harness
