package catalog

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// sqliteMigrations is the ordered list of SQLite schema migrations.
var sqliteMigrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: photos table",
		SQL: `
CREATE TABLE IF NOT EXISTS photos (
  id TEXT PRIMARY KEY,
  external_id TEXT NOT NULL,
  url TEXT NOT NULL,
  thumbnail_url TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "newest-first listing index",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_photos_created_id_desc ON photos(created_at DESC, id DESC);
`,
	},
	{
		Version:     3,
		Description: "reserve ids of deleted photos",
		SQL: `
CREATE TABLE IF NOT EXISTS photo_tombstones (
  id TEXT PRIMARY KEY,
  deleted_at INTEGER NOT NULL
);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

func sortedMigrations(list []Migration) []Migration {
	sorted := make([]Migration, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// detectUnversionedDB reports whether a photos table exists without any
// recorded migrations, as left behind by hand-created databases.
func detectUnversionedDB(db *sql.DB) (bool, error) {
	var photosExist int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='photos'").Scan(&photosExist)
	if err != nil {
		return false, err
	}
	if photosExist == 0 {
		return false, nil
	}

	var migrationsExist int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&migrationsExist)
	if err != nil {
		return false, err
	}
	if migrationsExist == 0 {
		return true, nil
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// runMigrations applies all pending SQLite migrations in order.
func runMigrations(db *sql.DB) error {
	unversioned, err := detectUnversionedDB(db)
	if err != nil {
		return fmt.Errorf("detect unversioned db: %w", err)
	}

	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	if unversioned {
		// The photos table already exists; start from version 1.
		if _, err := db.Exec("INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", 1); err != nil {
			return fmt.Errorf("stamp unversioned db: %w", err)
		}
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations(sqliteMigrations) {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the SQLite migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	unversioned, err := detectUnversionedDB(db)
	if err != nil {
		return nil, err
	}
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}
	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	effective := current
	if unversioned && effective == 0 {
		effective = 1
	}
	return planFrom(effective, sqliteMigrations), nil
}

// MigrateSQLite applies pending migrations to an already opened database.
func MigrateSQLite(db *sql.DB) error {
	return runMigrations(db)
}

func planFrom(current int, list []Migration) *MigrationStatus {
	sorted := sortedMigrations(list)
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}
	pending := []MigrationInfo{}
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}
	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}
}
