package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// schemaVersion is recorded in config under "db_version" after a successful
// migration pass.
const schemaVersion = "0.1"

// tableColumns is the compiled-in expected schema. Migration is additive
// only: columns present here but missing from the live table are added,
// nothing is ever dropped or renamed.
var tableColumns = map[string][]string{
	"config": {
		"key TEXT UNIQUE",
		"value TEXT",
	},
	"members": {
		"mid INTEGER UNIQUE",
		"name TEXT",
		"last_update REAL",
	},
	"videos": {
		"aid INTEGER",
		"bvid TEXT UNIQUE ON CONFLICT REPLACE",
		"mid INTEGER",
		"created INTEGER",
		"title TEXT",
		"description TEXT",
		"length TEXT",
		"picture_url TEXT",
		"view_count INTEGER DEFAULT 0",
		"comment INTEGER DEFAULT 0",
		"visited INTEGER DEFAULT 0",
	},
	"removed_member": {
		"mid INTEGER UNIQUE",
		"time_stamp REAL",
	},
}

// migratedTables lists the tables subject to column migration, in a fixed
// order. The config table is excluded: it predates versioning and never
// changes shape.
var migratedTables = []string{"members", "videos", "removed_member"}

// createTables creates any missing tables with the current schema.
func createTables(db *sql.DB) error {
	for _, table := range []string{"config", "members", "videos", "removed_member"} {
		query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(\n  %s\n)", table,
			strings.Join(tableColumns[table], ",\n  "))
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// liveColumns returns the column names of a live table.
func liveColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM PRAGMA_TABLE_INFO(?)", table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// migrate adds columns missing from the live schema. Safe to run on every
// startup; it is a no-op when config records the current schema version.
func (s *Store) migrate() error {
	current, _, err := s.GetConfig("db_version")
	if err != nil {
		return err
	}
	if current == schemaVersion {
		return nil
	}

	for _, table := range migratedTables {
		old, err := liveColumns(s.db, table)
		if err != nil {
			return err
		}

		for _, colDef := range tableColumns[table] {
			col := strings.Fields(colDef)[0]
			if old[col] {
				continue
			}
			s.log.Debug("adding column", "table", table, "column", col)
			query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, colDef)
			if _, err := s.db.Exec(query); err != nil {
				return fmt.Errorf("failed to add column %s to %s: %w", col, table, err)
			}
		}
	}

	_, err = s.SetConfig("db_version", schemaVersion)
	return err
}
