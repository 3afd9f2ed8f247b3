// internal/configstore/sqlite.go
package configstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS unit_id_overrides (
    device_id  TEXT PRIMARY KEY,
    unit_id    INTEGER NOT NULL,
    updated_at TEXT NOT NULL
);`

const upsertSQL = `
INSERT INTO unit_id_overrides(device_id, unit_id, updated_at) VALUES(?, ?, ?)
ON CONFLICT(device_id) DO UPDATE SET unit_id = excluded.unit_id, updated_at = excluded.updated_at;`

// Valid Modbus unit ids for a meter.
const (
	minUnitID = 1
	maxUnitID = 247
)

// SQLiteStore keeps unit id changes as overrides on top of the config file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the state database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("configstore: open %s: %w", path, err)
	}
	// one writer; avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configstore: create table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// PersistUnitID records the override for deviceID.
func (s *SQLiteStore) PersistUnitID(ctx context.Context, deviceID string, unitID uint8) error {
	if unitID < minUnitID || unitID > maxUnitID {
		return fmt.Errorf("configstore: %s: unit_id %d out of range %d..%d", deviceID, unitID, minUnitID, maxUnitID)
	}
	ts := s.now().UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, upsertSQL, deviceID, int(unitID), ts); err != nil {
		return fmt.Errorf("configstore: persist %s: %w", deviceID, err)
	}
	return nil
}

// Overrides returns every recorded unit id keyed by device id.
// A stored unit id outside 1..247 is an error.
func (s *SQLiteStore) Overrides(ctx context.Context) (map[string]uint8, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT device_id, unit_id FROM unit_id_overrides")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]uint8)
	for rows.Next() {
		var (
			id   string
			unit int
		)
		if err := rows.Scan(&id, &unit); err != nil {
			return nil, err
		}
		if unit < minUnitID || unit > maxUnitID {
			return nil, fmt.Errorf("configstore: override for %s: unit_id %d out of range %d..%d", id, unit, minUnitID, maxUnitID)
		}
		out[id] = uint8(unit)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
