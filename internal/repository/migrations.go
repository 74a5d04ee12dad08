package repository

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

const noteVersionsSchemaV1 = `
CREATE TABLE IF NOT EXISTS note_ids (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	allocated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS note_versions (
	id       INTEGER NOT NULL REFERENCES note_ids(id),
	version  INTEGER NOT NULL CHECK (version >= 1),
	title    TEXT NOT NULL,
	content  TEXT NOT NULL,
	created  TEXT NOT NULL,
	modified TEXT NOT NULL,
	deleted  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, version)
);`

const deletedIndexSchemaV2 = `
CREATE INDEX IF NOT EXISTS idx_note_versions_deleted ON note_versions(deleted);`

var migrations = []migration{
	{
		version: 1,
		name:    "note_versions",
		sql:     noteVersionsSchemaV1,
	},
	{
		version: 2,
		name:    "note_versions_deleted_index",
		sql:     deletedIndexSchemaV2,
	},
}

func ApplyMigrations(database *sql.DB) error {
	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS schema_version (
	version     INTEGER PRIMARY KEY,
	name        TEXT NOT NULL,
	applied_at  TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	for _, m := range migrations {
		applied, err := migrationApplied(database, m.version)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}
		if err := applyMigration(database, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

func migrationApplied(database *sql.DB, version int) (bool, error) {
	var count int
	if err := database.QueryRow(
		"SELECT COUNT(1) FROM schema_version WHERE version = ?",
		version,
	).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func applyMigration(database *sql.DB, m migration) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, datetime('now'))",
		m.version, m.name,
	); err != nil {
		return err
	}

	return tx.Commit()
}
