package database

import (
	"context"
	"fmt"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the backend named by driver and applies its schema.
func Open(ctx context.Context, driver, url string) (Database, error) {
	switch driver {
	case DriverPostgres:
		db, err := NewPostgresDB(ctx, url)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case DriverSQLite:
		return NewSQLiteDB(url)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
