package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/persist/internal/queryir"
	"github.com/roach88/persist/internal/querysql"
)

// Tx is one database transaction. It implements command.Tx.
//
// Thread-safety: a Tx belongs to one run and is not safe for concurrent use.
type Tx struct {
	tx       *sql.Tx
	dialect  querysql.Dialect
	compiler *querysql.SQLCompiler
}

// Insert implements command.Writer. With returning set, the generated
// value of that column is read back: through RETURNING on postgres, from
// the last insert id elsewhere.
func (t *Tx) Insert(ctx context.Context, table string, values map[string]any, returning string) (any, error) {
	query, args, err := t.compile(queryir.Insert{Table: table, Values: values, Returning: returning})
	if err != nil {
		return nil, err
	}

	if returning != "" && t.dialect.Returning() {
		var id any
		if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return nil, fmt.Errorf("insert %s: %w", table, err)
		}
		return id, nil
	}

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if returning == "" {
		return nil, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert %s: read %s: %w", table, returning, err)
	}
	return id, nil
}

// Update implements command.Writer.
func (t *Tx) Update(ctx context.Context, table string, values, where map[string]any) (int64, error) {
	return t.exec(ctx, queryir.Update{Table: table, Values: values, Where: queryir.Where(where)})
}

// Delete implements command.Writer.
func (t *Tx) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	return t.exec(ctx, queryir.Delete{Table: table, Where: queryir.Where(where)})
}

// compile refuses statements queryir.Validate flags. A write without a
// condition would touch every row of the table.
func (t *Tx) compile(stmt queryir.Statement) (string, []any, error) {
	if res := queryir.Validate(stmt); !res.IsPortable {
		return "", nil, fmt.Errorf("refusing statement: %s", strings.Join(res.Warnings, "; "))
	}
	return t.compiler.Compile(stmt)
}

func (t *Tx) exec(ctx context.Context, stmt queryir.Statement) (int64, error) {
	query, args, err := t.compile(stmt)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Commit implements command.Tx.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback implements command.Tx. Rolling back a finished transaction is
// not an error.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}
