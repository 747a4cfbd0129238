package queryir

import "sort"

// Statement is one SQL statement in the IR.
//
// This is a sealed interface: only types in this package implement it.
type Statement interface {
	statementNode()
}

// Predicate is a row filter.
//
// This is a sealed interface: only types in this package implement it.
type Predicate interface {
	predicateNode()
}

// Insert writes one row.
//
// Semantics:
//
//	INSERT INTO <table> (<columns>) VALUES (<values>) [RETURNING <returning>]
//
// Returning names the column the database generates. Dialects without
// RETURNING read it back from the driver's last insert id.
type Insert struct {
	Table     string
	Values    map[string]any
	Returning string
}

func (Insert) statementNode() {}

// Update changes the rows matching Where.
//
// Semantics:
//
//	UPDATE <table> SET <column = value, ...> WHERE <where>
type Update struct {
	Table  string
	Values map[string]any
	Where  Predicate
}

func (Update) statementNode() {}

// Delete removes the rows matching Where.
//
// Semantics:
//
//	DELETE FROM <table> WHERE <where>
type Delete struct {
	Table string
	Where Predicate
}

func (Delete) statementNode() {}

// Select reads columns of the rows matching Where.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <where> ORDER BY <orderBy>
//
// With OrderBy empty the rows are ordered by every selected column, so
// results are deterministic. Count replaces the column list with
// COUNT(*).
type Select struct {
	From    string
	Columns []string
	Where   Predicate
	OrderBy []string
	Count   bool
}

func (Select) statementNode() {}

// Equals matches rows whose Column equals Value.
type Equals struct {
	Column string
	Value  any
}

func (Equals) predicateNode() {}

// IsNull matches rows whose Column is NULL.
type IsNull struct {
	Column string
}

func (IsNull) predicateNode() {}

// And matches rows every predicate matches. Empty And matches every row.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Where builds the predicate of a key condition. A nil or empty condition
// yields nil (no filter).
func Where(cond map[string]any) Predicate {
	if len(cond) == 0 {
		return nil
	}
	cols := make([]string, 0, len(cond))
	for c := range cond {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	preds := make([]Predicate, 0, len(cols))
	for _, c := range cols {
		if cond[c] == nil {
			preds = append(preds, IsNull{Column: c})
			continue
		}
		preds = append(preds, Equals{Column: c, Value: cond[c]})
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}

// Columns returns the keys of values in sorted order.
func Columns(values map[string]any) []string {
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
