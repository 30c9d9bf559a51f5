package sqldb

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/masquebot/masquebot/internal/store"
)

// Driver names accepted by Open.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Open connects to the database. Managed mode uses the pgx stdlib
// driver, standalone mode the modernc sqlite driver; every query in
// this package uses $1 placeholders, which both drivers accept.
func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// The sqlite driver serializes writes; a single connection
		// avoids SQLITE_BUSY under concurrent group workers.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// NewStores creates all repositories over one database handle.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Users:    &UserStore{db: db},
		Groups:   &GroupStore{db: db},
		Members:  &MemberStore{db: db},
		Messages: &MessageStore{db: db},
		PMs:      &PMStore{db: db},
		Bans:     &BanStore{db: db},
		Masks:    &MaskStore{db: db},
		Codes:    &CodeStore{db: db},
	}
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
