// Package pg provides helpers for PostgreSQL using the pgx/v5 driver: a pool
// constructor with bounded retries, goose migrations from an embedded filesystem,
// a health check and error classifiers.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		panic(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, storage.Migrations, "migrations", cfg, log); err != nil {
//		panic(err)
//	}
//
// # Error Handling
//
// IsNotFoundError, IsDuplicateKeyError and IsForeignKeyViolationError unwrap pgx
// errors and *pgconn.PgError so storage code can map them to domain errors.
package pg
