package queryir

import "fmt"

// ValidationResult contains the portability analysis of a statement.
type ValidationResult struct {
	// IsPortable reports whether the statement behaves the same on every
	// supported dialect and is bounded by a condition where one is expected.
	IsPortable bool

	// Warnings lists the problems found. Empty when IsPortable is true.
	Warnings []string
}

// Validate checks a statement against the portability rules:
//  1. Updates and deletes carry a condition
//  2. Equals never compares against nil (use IsNull)
//  3. Inserts and updates name at least one column, selects list columns
//  4. Every statement names its table
//
// Validate is a pure function with no side effects.
func Validate(stmt Statement) ValidationResult {
	v := &validator{warnings: []string{}}
	v.validateStatement(stmt)
	return ValidationResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validateStatement(stmt Statement) {
	switch s := stmt.(type) {
	case nil:
		v.addWarning("nil statement")
	case Insert:
		v.table(s.Table)
		if len(s.Values) == 0 && s.Returning == "" {
			v.addWarning("insert into %s writes no columns", s.Table)
		}
	case Update:
		v.table(s.Table)
		if len(s.Values) == 0 {
			v.addWarning("update of %s sets no columns", s.Table)
		}
		v.condition("update", s.Table, s.Where)
	case Delete:
		v.table(s.Table)
		v.condition("delete", s.Table, s.Where)
	case Select:
		v.table(s.From)
		if len(s.Columns) == 0 && !s.Count {
			v.addWarning("select from %s lists no columns", s.From)
		}
		v.validatePredicate(s.Where)
	default:
		v.addWarning("unknown statement type: %T", stmt)
	}
}

func (v *validator) table(name string) {
	if name == "" {
		v.addWarning("statement names no table")
	}
}

// condition flags unbounded updates and deletes.
func (v *validator) condition(op, table string, where Predicate) {
	if where == nil {
		v.addWarning("%s of %s has no condition and touches every row", op, table)
		return
	}
	if and, ok := where.(And); ok && len(and.Predicates) == 0 {
		v.addWarning("%s of %s has an empty condition and touches every row", op, table)
		return
	}
	v.validatePredicate(where)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		if pred.Value == nil {
			v.addWarning("column %q compared to nil: NULL never equals, use IsNull", pred.Column)
		}
	case IsNull:
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addWarning("unknown predicate type: %T", p)
	}
}
