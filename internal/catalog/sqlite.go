package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"photowall/internal/models"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	photoColumns = "id, external_id, url, thumbnail_url, created_at"
)

// SQLite is the file-backed catalog engine.
type SQLite struct {
	db *sql.DB
}

var _ Catalog = (*SQLite)(nil)

// OpenSQLite opens the SQLite database at path and applies pending migrations.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := openSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// OpenSQLiteRaw opens the database without running migrations. It backs
// migration inspection.
func OpenSQLiteRaw(path string) (*sql.DB, error) {
	return openSQLiteDB(path)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert adds one photo row. Ids of deleted photos stay reserved.
func (s *SQLite) Insert(ctx context.Context, photo *models.Photo) (err error) {
	if err := validatePhoto(photo); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var reserved int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM photo_tombstones WHERE id = ? LIMIT 1", photo.ID).Scan(&reserved)
	switch {
	case err == nil:
		return ErrDuplicateID
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO photos (`+photoColumns+`) VALUES (?, ?, ?, ?, ?)`,
		photo.ID, photo.ExternalID, photo.URL, photo.ThumbnailURL, photo.CreatedAt.UTC().UnixMicro(),
	)
	if err != nil {
		if isSQLiteUniqueConstraint(err) {
			return ErrDuplicateID
		}
		return err
	}
	return tx.Commit()
}

// Get returns one photo by id.
func (s *SQLite) Get(ctx context.Context, id string) (*models.Photo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = ?`, id)
	photo, err := scanPhoto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// DeleteByID removes one photo row and reserves its id.
func (s *SQLite) DeleteByID(ctx context.Context, id string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		err = ErrNotFound
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO photo_tombstones (id, deleted_at) VALUES (?, ?)",
		id, time.Now().UTC().UnixMicro(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListNewest returns up to limit photos, newest first.
func (s *SQLite) ListNewest(ctx context.Context, limit int) ([]models.Photo, error) {
	return s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos ORDER BY created_at DESC, id DESC LIMIT ?`,
		ClampLimit(limit),
	)
}

// ListBeyond returns every photo ranked after the newest offset photos.
func (s *SQLite) ListBeyond(ctx context.Context, offset int) ([]models.Photo, error) {
	if offset < 0 {
		offset = 0
	}
	return s.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?`,
		offset,
	)
}

// Count returns the number of photo rows.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLite) queryPhotos(ctx context.Context, query string, args ...any) ([]models.Photo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []models.Photo{}
	for rows.Next() {
		photo, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, *photo)
	}
	return photos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*models.Photo, error) {
	var (
		photo     models.Photo
		createdAt int64
	)
	if err := row.Scan(&photo.ID, &photo.ExternalID, &photo.URL, &photo.ThumbnailURL, &createdAt); err != nil {
		return nil, err
	}
	photo.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &photo, nil
}

func openSQLiteDB(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Tune connection pool for a single local writer.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteDSN carries the pragmas in the DSN so every pooled connection gets them.
func sqliteDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("db path is required")
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String(), nil
}

func isSQLiteUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: photos.id") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}
