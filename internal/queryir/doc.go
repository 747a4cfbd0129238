// Package queryir provides the statement intermediate representation the
// storage layer compiles to SQL.
//
// The IR sits between the atomic write commands and the dialect compiler:
//
//	[Insert/Update/Delete command] -> [Statement IR] -> [querysql dialect] -> database/sql
//
// STATEMENTS:
//
//   - Insert(table, values, returning): one row; Returning names the column
//     the database generates, if any
//   - Update(table, values, where): columns of the rows matching where
//   - Delete(table, where): rows matching where
//   - Select(from, columns, where, orderBy): row reads used by assertions
//
// PREDICATES:
//
//   - Equals: column = value
//   - IsNull: column IS NULL
//   - And: conjunction (empty = always true)
//
// Where builds the predicate of a key condition map: keys are sorted so
// the same condition always compiles to the same SQL, and nil values
// become IsNull because NULL never equals anything.
//
// SEALED INTERFACES:
//
// Statement and Predicate are sealed with marker methods so compilers can
// switch over them exhaustively.
//
// PORTABILITY:
//
// Validate flags statements that behave differently across the supported
// dialects or touch more rows than a key condition should: updates and
// deletes without a condition, Equals against nil, empty column lists.
// Flagged statements still compile; store transactions refuse them.
package queryir
