package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"photowall/internal/models"
)

//go:embed pgmigrations/*.sql
var pgMigrationsFS embed.FS

// Postgres is the PostgreSQL catalog engine.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Catalog = (*Postgres)(nil)

// OpenPostgres connects to dbURL, applies pending migrations and pings the pool.
func OpenPostgres(ctx context.Context, dbURL string) (*Postgres, error) {
	if err := MigratePostgres(dbURL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// MigratePostgres applies the embedded PostgreSQL migrations.
func MigratePostgres(dbURL string) error {
	m, err := newPostgresMigrator(dbURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PostgresMigrationPlan reports the PostgreSQL migration status without applying anything.
func PostgresMigrationPlan(dbURL string) (*MigrationStatus, error) {
	m, err := newPostgresMigrator(dbURL)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("database is dirty at version %d", version)
	}

	available, err := postgresMigrationList()
	if err != nil {
		return nil, err
	}
	return planFrom(int(version), available), nil
}

func newPostgresMigrator(dbURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(pgMigrationsFS, "pgmigrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	migrateURL, err := pgx5URL(dbURL)
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL)
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}
	return m, nil
}

// postgresMigrationList lists the embedded up migrations.
func postgresMigrationList() ([]Migration, error) {
	entries, err := pgMigrationsFS.ReadDir("pgmigrations")
	if err != nil {
		return nil, err
	}
	var list []Migration
	for _, entry := range entries {
		var (
			version int
			rest    string
		)
		if _, err := fmt.Sscanf(entry.Name(), "%06d_%s", &version, &rest); err != nil {
			continue
		}
		const suffix = ".up.sql"
		if len(rest) <= len(suffix) || rest[len(rest)-len(suffix):] != suffix {
			continue
		}
		list = append(list, Migration{Version: version, Description: rest[:len(rest)-len(suffix)]})
	}
	return list, nil
}

// pgx5URL rewrites a postgres:// url into the scheme the migrate driver registers.
func pgx5URL(dbURL string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	u.Scheme = "pgx5"
	return u.String(), nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

// Insert adds one photo row. Ids of deleted photos stay reserved.
func (p *Postgres) Insert(ctx context.Context, photo *models.Photo) error {
	if err := validatePhoto(photo); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var reserved int
		err := tx.QueryRow(ctx, "SELECT 1 FROM photo_tombstones WHERE id = $1", photo.ID).Scan(&reserved)
		switch {
		case err == nil:
			return ErrDuplicateID
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO photos (`+photoColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			photo.ID, photo.ExternalID, photo.URL, photo.ThumbnailURL, photo.CreatedAt.UTC(),
		)
		if isUniqueViolation(err) {
			return ErrDuplicateID
		}
		return err
	})
}

// Get returns one photo by id.
func (p *Postgres) Get(ctx context.Context, id string) (*models.Photo, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id)
	photo, err := scanPgPhoto(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return photo, nil
}

// DeleteByID removes one photo row and reserves its id.
func (p *Postgres) DeleteByID(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM photos WHERE id = $1", id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO photo_tombstones (id) VALUES ($1) ON CONFLICT (id) DO NOTHING", id)
		return err
	})
}

// ListNewest returns up to limit photos, newest first.
func (p *Postgres) ListNewest(ctx context.Context, limit int) ([]models.Photo, error) {
	return p.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos ORDER BY created_at DESC, id DESC LIMIT $1`,
		ClampLimit(limit),
	)
}

// ListBeyond returns every photo ranked after the newest offset photos.
func (p *Postgres) ListBeyond(ctx context.Context, offset int) ([]models.Photo, error) {
	if offset < 0 {
		offset = 0
	}
	return p.queryPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos ORDER BY created_at DESC, id DESC OFFSET $1`,
		offset,
	)
}

// Count returns the number of photo rows.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM photos").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) queryPhotos(ctx context.Context, query string, args ...any) ([]models.Photo, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	photos := []models.Photo{}
	for rows.Next() {
		photo, err := scanPgPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, *photo)
	}
	return photos, rows.Err()
}

func scanPgPhoto(row pgx.Row) (*models.Photo, error) {
	var (
		photo     models.Photo
		createdAt time.Time
	)
	if err := row.Scan(&photo.ID, &photo.ExternalID, &photo.URL, &photo.ThumbnailURL, &createdAt); err != nil {
		return nil, err
	}
	photo.CreatedAt = createdAt.UTC()
	return &photo, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
