package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"staffdesk/config"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// NewDB opens the journal database described by cfg and checks it is
// reachable.
func NewDB(ctx context.Context, cfg config.JournalConfig) (*sql.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case "", DriverSQLite:
		if dir := filepath.Dir(cfg.URL); dir != "" && dir != "." && !strings.HasPrefix(cfg.URL, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("journal dir: %w", err)
			}
		}
		db, err = sql.Open("sqlite", sqliteDSN(cfg.URL))
	case DriverPostgres:
		db, err = sql.Open("pgx", cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	return db, nil
}

// sqliteDSN waits on a locked database instead of failing with SQLITE_BUSY
// when two views record at the same moment.
func sqliteDSN(url string) string {
	if strings.Contains(url, "_pragma=") {
		return url
	}
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=busy_timeout(5000)"
}

func isPostgresDB(ctx context.Context, db *sql.DB) (bool, error) {
	var version string
	if err := db.QueryRowContext(ctx, `SELECT version()`).Scan(&version); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "no such function") {
			return false, nil
		}
		return false, err
	}
	return strings.Contains(strings.ToLower(version), "postgres"), nil
}
