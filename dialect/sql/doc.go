// Package sql implements rom datasets and command executors on database/sql.
//
// # Drivers
//
// Driver wraps a *sql.DB as a dialect.Driver. StatsDriver and DebugDriver
// decorate any dialect.Driver with statement statistics and logging:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog())
//
// # Gateways and datasets
//
// A Gateway exposes tables as relation datasets. Datasets translate
// restrictions into WHERE clauses and wrapped relations into inner joins:
//
//	gw := sql.NewGateway(stats)
//	users, _ := gw.Dataset("users")
//	rows, err := users.Where(rom.Tuple{"name": "Jane"}).Fetch(ctx)
//
// Datasets are command.Writer implementations; Register installs the
// create, update and delete executors for the SQL dialects. Postgres and
// SQLite return written rows with RETURNING, MySQL reads them back.
// Constraint violations are returned as rom.ConstraintError.
//
// # Builders
//
// Statements are built with a small dialect-aware builder:
//
//	query, args := sql.Dialect(dialect.Postgres).
//	    Select("id", "name").
//	    From("users").
//	    Where(sql.EQ("name", "Jane"), sql.In("id", 1, 2)).
//	    Query()
//	// SELECT "id", "name" FROM "users" WHERE "name" = $1 AND "id" IN ($2, $3)
package sql
