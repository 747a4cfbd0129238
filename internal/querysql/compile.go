package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/persist/internal/queryir"
)

// Dialect selects placeholder style, identifier quoting and key
// read-back for one SQL backend.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// ParseDialect maps a database/sql driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case SQLite, Postgres, MySQL:
		return Dialect(driver), nil
	}
	return "", fmt.Errorf("unsupported dialect %q", driver)
}

// Returning reports whether inserts read generated keys with RETURNING
// instead of the driver's last insert id.
func (d Dialect) Returning() bool {
	return d == Postgres
}

func (d Dialect) quote(ident string) string {
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// SQLCompiler compiles statement IR to parameterized SQL for one dialect.
//
// Values are always bound as parameters, never interpolated. Columns are
// emitted in sorted order so a statement always compiles to the same SQL.
type SQLCompiler struct {
	Dialect Dialect
}

// NewSQLCompiler creates a compiler for d.
func NewSQLCompiler(d Dialect) *SQLCompiler {
	return &SQLCompiler{Dialect: d}
}

// Compile converts a statement to SQL and its parameters.
func (c *SQLCompiler) Compile(stmt queryir.Statement) (string, []any, error) {
	b := &builder{dialect: c.Dialect}
	switch s := stmt.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil statement")
	case queryir.Insert:
		b.insert(s)
	case queryir.Update:
		if len(s.Values) == 0 {
			return "", nil, fmt.Errorf("update of %s sets no columns", s.Table)
		}
		if err := b.update(s); err != nil {
			return "", nil, err
		}
	case queryir.Delete:
		if err := b.delete(s); err != nil {
			return "", nil, err
		}
	case queryir.Select:
		if len(s.Columns) == 0 && !s.Count {
			return "", nil, fmt.Errorf("select from %s lists no columns", s.From)
		}
		if err := b.selectRows(s); err != nil {
			return "", nil, err
		}
	default:
		return "", nil, fmt.Errorf("unsupported statement type: %T", stmt)
	}
	return b.sql.String(), b.params, nil
}

// builder accumulates SQL text and parameters, numbering placeholders for
// dialects that need it.
type builder struct {
	dialect Dialect
	sql     strings.Builder
	params  []any
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
}

func (b *builder) bind(v any) string {
	b.params = append(b.params, v)
	if b.dialect == Postgres {
		return "$" + strconv.Itoa(len(b.params))
	}
	return "?"
}

func (b *builder) insert(s queryir.Insert) {
	b.write("INSERT INTO ", b.dialect.quote(s.Table))
	cols := queryir.Columns(s.Values)
	if len(cols) == 0 {
		if b.dialect == MySQL {
			b.write(" () VALUES ()")
		} else {
			b.write(" DEFAULT VALUES")
		}
	} else {
		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		for i, col := range cols {
			quoted[i] = b.dialect.quote(col)
			marks[i] = b.bind(s.Values[col])
		}
		b.write(" (", strings.Join(quoted, ", "), ") VALUES (", strings.Join(marks, ", "), ")")
	}
	if s.Returning != "" && b.dialect.Returning() {
		b.write(" RETURNING ", b.dialect.quote(s.Returning))
	}
}

func (b *builder) update(s queryir.Update) error {
	b.write("UPDATE ", b.dialect.quote(s.Table), " SET ")
	for i, col := range queryir.Columns(s.Values) {
		if i > 0 {
			b.write(", ")
		}
		b.write(b.dialect.quote(col), " = ", b.bind(s.Values[col]))
	}
	return b.where(s.Where)
}

func (b *builder) delete(s queryir.Delete) error {
	b.write("DELETE FROM ", b.dialect.quote(s.Table))
	return b.where(s.Where)
}

func (b *builder) selectRows(s queryir.Select) error {
	if s.Count {
		b.write("SELECT COUNT(*) FROM ", b.dialect.quote(s.From))
		return b.where(s.Where)
	}
	quoted := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		quoted[i] = b.dialect.quote(col)
	}
	b.write("SELECT ", strings.Join(quoted, ", "), " FROM ", b.dialect.quote(s.From))
	if err := b.where(s.Where); err != nil {
		return err
	}

	order := s.OrderBy
	if len(order) == 0 {
		order = s.Columns
	}
	keys := make([]string, len(order))
	for i, col := range order {
		keys[i] = b.dialect.quote(col) + " ASC"
	}
	b.write(" ORDER BY ", strings.Join(keys, ", "))
	return nil
}

func (b *builder) where(p queryir.Predicate) error {
	if p == nil {
		return nil
	}
	b.write(" WHERE ")
	return b.predicate(p)
}

func (b *builder) predicate(p queryir.Predicate) error {
	switch pred := p.(type) {
	case queryir.Equals:
		if pred.Value == nil {
			b.write(b.dialect.quote(pred.Column), " IS NULL")
			return nil
		}
		b.write(b.dialect.quote(pred.Column), " = ", b.bind(pred.Value))
	case queryir.IsNull:
		b.write(b.dialect.quote(pred.Column), " IS NULL")
	case queryir.And:
		if len(pred.Predicates) == 0 {
			b.write("1 = 1")
			return nil
		}
		for i, sub := range pred.Predicates {
			if i > 0 {
				b.write(" AND ")
			}
			if err := b.predicate(sub); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported predicate type: %T", p)
	}
	return nil
}
