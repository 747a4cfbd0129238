package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/querysql"
)

// Store is one database connection pool usable as a command.Driver.
//
// Thread-safety: a Store is safe for concurrent use; each transaction it
// begins is not.
type Store struct {
	db       *sql.DB
	dialect  querysql.Dialect
	compiler *querysql.SQLCompiler
}

// Open connects to dsn with the named database/sql driver: sqlite3,
// postgres or mysql. SQLite connections get the pragmas listed in the
// package documentation.
func Open(driver, dsn string) (*Store, error) {
	dialect, err := querysql.ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := configure(db, dialect); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: dialect, compiler: querysql.NewSQLCompiler(dialect)}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the connection.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Exec runs a statement outside any unit of work, such as scenario setup
// DDL.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

// Begin implements command.Driver.
func (s *Store) Begin(ctx context.Context) (command.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{tx: tx, dialect: s.dialect, compiler: s.compiler}, nil
}

func configure(db *sql.DB, dialect querysql.Dialect) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if dialect != querysql.SQLite {
		return nil
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return applyPragmas(db)
}

// sqlitePragmas are applied in order to every SQLite connection.
var sqlitePragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

func applyPragmas(db *sql.DB) error {
	for _, p := range sqlitePragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// verifyPragma reports whether pragma name currently reads back as want.
func (s *Store) verifyPragma(name, want string) error {
	var got string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&got); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if got != want {
		return fmt.Errorf("pragma %s = %q, want %q", name, got, want)
	}
	return nil
}
