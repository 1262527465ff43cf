// Package dialect identifies the storage adapters of rom.
//
// Every relation definition names an adapter. The adapter decides which
// dataset implementation backs the relation and which command executors
// persist its tuples.
//
// # Adapters
//
//   - Memory: goroutine-safe in-memory datasets (dialect/memory)
//   - SQLite, Postgres, MySQL: database/sql datasets (dialect/sql)
//
// Each adapter is identified by a constant string:
//
//	dialect.Memory   = "memory"
//	dialect.SQLite   = "sqlite3"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//
// # Driver Interface
//
// SQL datasets run their statements through a Driver:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// A Tx is a Driver operation scope that can be committed or rolled back.
// Command graphs are not transactional on their own; run them against a
// gateway opened on a Tx to make them atomic.
//
// # Usage
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	gw := sql.NewGateway(drv)
//	ds, err := gw.Dataset("users")
//
// # Sub-packages
//
//   - dialect/memory: in-memory gateway and command executors
//   - dialect/sql: driver wrapper, statistics, SQL datasets and executors
//   - dialect/sql/sqlgraph: constraint error classification
package dialect
