package kvlog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/marcboeker/go-duckdb"
)

// DuckBackend stores keys in a single-table DuckDB file.
type DuckBackend struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewDuckBackend opens (or creates) the DuckDB file at dbPath.
func NewDuckBackend(dbPath string) (*DuckBackend, error) {
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=1",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				fmt.Printf("[DuckLog] Pragma warning: %v\n", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &DuckBackend{db: db, dbPath: dbPath}, nil
}

func (d *DuckBackend) Get(key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (d *DuckBackend) Set(key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, string(value)); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (d *DuckBackend) Keys() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (d *DuckBackend) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, err := d.db.Exec(`DELETE FROM kv`)
	return err
}

func (d *DuckBackend) Close() error {
	return d.db.Close()
}
