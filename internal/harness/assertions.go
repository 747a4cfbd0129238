package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string     // Assertion type for categorization
	Expected string     // Human-readable expected outcome
	Actual   string     // Human-readable actual outcome
	Log      []LogEntry // Committed writes for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nCommitted writes:\n")
		for _, entry := range e.Log {
			fmt.Fprintf(&buf, "  [%d] step %d: %s %v\n", entry.Seq, entry.Step, entry.Label(), entry.Values)
		}
	}
	return buf.String()
}

// assertWriteCount checks the number of committed writes matching the
// assertion's op and table filters.
func assertWriteCount(log []LogEntry, assertion Assertion) error {
	count := 0
	for _, entry := range log {
		if assertion.Op != "" && string(entry.Op) != assertion.Op {
			continue
		}
		if assertion.Table != "" && entry.Table != assertion.Table {
			continue
		}
		count++
	}

	if count != *assertion.Count {
		return &AssertionError{
			Type:     AssertWriteCount,
			Expected: fmt.Sprintf("%d writes matching %s", *assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d writes", count),
			Log:      log,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	op, table := a.Op, a.Table
	if op == "" {
		op = "*"
	}
	if table == "" {
		table = "*"
	}
	return op + " " + table
}

// assertWriteOrder checks that the expected writes appear in order.
// Writes don't need to be consecutive (intervening writes are allowed).
func assertWriteOrder(log []LogEntry, assertion Assertion) error {
	next := 0
	for _, entry := range log {
		if next < len(assertion.Writes) && entry.Label() == assertion.Writes[next] {
			next++
		}
	}
	if next == len(assertion.Writes) {
		return nil
	}

	return &AssertionError{
		Type:     AssertWriteOrder,
		Expected: fmt.Sprintf("writes in order: %v", assertion.Writes),
		Actual:   fmt.Sprintf("%q not found after %v", assertion.Writes[next], assertion.Writes[:next]),
		Log:      log,
	}
}

// assertFinalState queries the table and checks either the number of
// matching rows or the columns of the single matching row (subset
// semantics).
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	whereDesc := formatWhereClause(assertion.Where)

	if len(assertion.Expect) == 0 {
		n, err := st.Count(ctx, assertion.Table, assertion.Where)
		if err != nil {
			return queryFailed(assertion, err)
		}
		if n != *assertion.Count {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%d rows in %s where %s", *assertion.Count, assertion.Table, whereDesc),
				Actual:   fmt.Sprintf("%d rows", n),
			}
		}
		return nil
	}

	columns := ir.SortedKeys(assertion.Expect)
	rows, err := st.Select(ctx, assertion.Table, columns, assertion.Where)
	if err != nil {
		return queryFailed(assertion, err)
	}

	switch {
	case len(rows) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case len(rows) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := rows[0]
	for _, col := range columns {
		expected, actual := assertion.Expect[col], row[col]
		if !ir.SameValue(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q = %v (type %T)", col, expected, expected),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", col, actual, actual),
			}
		}
	}
	return nil
}

func queryFailed(assertion Assertion, err error) error {
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("query table %s", assertion.Table),
		Actual:   fmt.Sprintf("query error: %v", err),
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	parts := make([]string, 0, len(where))
	for _, k := range ir.SortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// AssertionContext provides database access for final_state assertions.
type AssertionContext struct {
	Stores map[string]*store.Store // by schema database name
	Ctx    context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Write assertions see committed writes only.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	committed := result.Committed()

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertWriteCount:
			err = assertWriteCount(committed, assertion)
		case AssertWriteOrder:
			err = assertWriteOrder(committed, assertion)
		case AssertFinalState:
			db := assertion.Database
			if db == "" {
				db = ir.DefaultDatabase
			}
			var st *store.Store
			if actx != nil {
				st = actx.Stores[db]
			}
			if st == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database %q", i, db)
			} else {
				err = assertFinalState(actx.Ctx, st, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
