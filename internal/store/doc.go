// Package store provides database/sql connections that implement the
// write path's driver contract.
//
// A Store wraps one *sql.DB. Begin opens a transaction whose Insert, Update
// and Delete compile the statement IR with the store's dialect and run it
// inside that transaction. Select reads rows back for assertions.
//
// # Supported drivers
//
//   - sqlite3 (github.com/mattn/go-sqlite3): generated keys via LastInsertId
//   - postgres (github.com/lib/pq): generated keys via RETURNING
//   - mysql (github.com/go-sql-driver/mysql): generated keys via LastInsertId
//
// # SQLite configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//   - one open connection: SQLite allows a single writer, and an in-memory
//     database lives only as long as its connection
package store
