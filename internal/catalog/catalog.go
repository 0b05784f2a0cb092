package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"photowall/internal/models"
)

const (
	// DefaultListLimit is used when a caller passes a non-positive limit.
	DefaultListLimit = 800
	// MaxListLimit bounds every ListNewest response regardless of caller input.
	MaxListLimit = 2000
)

var (
	// ErrNotFound is returned when no photo matches the requested id.
	ErrNotFound = errors.New("photo not found")
	// ErrDuplicateID is returned when inserting an id that already exists.
	ErrDuplicateID = errors.New("photo id already exists")
)

// Catalog is the ordered metadata store of photos.
//
// Every listing uses the total order (created_at DESC, id DESC), so the
// first N rows of ListNewest and the rows skipped by ListBeyond(N) agree.
type Catalog interface {
	Insert(ctx context.Context, photo *models.Photo) error
	Get(ctx context.Context, id string) (*models.Photo, error)
	DeleteByID(ctx context.Context, id string) error
	ListNewest(ctx context.Context, limit int) ([]models.Photo, error)
	ListBeyond(ctx context.Context, offset int) ([]models.Photo, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ClampLimit normalizes a caller-supplied list limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// Options selects and configures a catalog engine.
type Options struct {
	// DatabaseURL selects PostgreSQL when it carries a postgres scheme.
	DatabaseURL string
	// SQLitePath is used when DatabaseURL is empty.
	SQLitePath string
}

// Engine names the engine Open would choose for these options.
func (o Options) Engine() string {
	if isPostgresURL(o.DatabaseURL) {
		return "postgres"
	}
	return "sqlite"
}

// Open opens the configured catalog engine and applies its schema.
func Open(ctx context.Context, opts Options) (Catalog, error) {
	dbURL := strings.TrimSpace(opts.DatabaseURL)
	if dbURL != "" {
		if !isPostgresURL(dbURL) {
			return nil, fmt.Errorf("unsupported database url scheme")
		}
		return OpenPostgres(ctx, dbURL)
	}
	return OpenSQLite(opts.SQLitePath)
}

func isPostgresURL(raw string) bool {
	raw = strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://")
}

func validatePhoto(photo *models.Photo) error {
	if photo == nil {
		return fmt.Errorf("photo is required")
	}
	if strings.TrimSpace(photo.ID) == "" {
		return fmt.Errorf("photo id is required")
	}
	if strings.TrimSpace(photo.ExternalID) == "" {
		return fmt.Errorf("photo external id is required")
	}
	if photo.CreatedAt.IsZero() {
		return fmt.Errorf("photo created_at is required")
	}
	return nil
}
