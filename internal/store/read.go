package store

import (
	"context"
	"fmt"

	"github.com/roach88/persist/internal/queryir"
)

// Select reads columns of the rows of table matching where, ordered by
// the selected columns. Text read back as []byte is returned as string.
func (s *Store) Select(ctx context.Context, table string, columns []string, where map[string]any) ([]map[string]any, error) {
	query, args, err := s.compiler.Compile(queryir.Select{From: table, Columns: columns, Where: queryir.Where(where)})
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("select %s: scan: %w", table, err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

// Count returns the number of rows of table matching where.
func (s *Store) Count(ctx context.Context, table string, where map[string]any) (int, error) {
	query, args, err := s.compiler.Compile(queryir.Select{From: table, Where: queryir.Where(where), Count: true})
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
