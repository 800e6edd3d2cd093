package repository

import "fmt"

// Open returns the store for driver: "memory", "sqlite" or "postgres".
// dsn is the SQLite path or the Postgres connection string.
func Open(driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", backendMemory:
		return NewMemoryStore(opts...), nil
	case sqliteDialect.name:
		return OpenSQLite(dsn, opts...)
	case postgresDialect.name:
		return OpenPostgres(dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
