// Package images provides access to the source image catalog.
package images

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// ErrNotFound is returned when a source image does not exist or is inactive.
var ErrNotFound = errors.New("images: not found")

// maxImageBytes bounds a fetched catalog image.
const maxImageBytes = 10 << 20

// Record is a row of the images table.
type Record struct {
	ID        string    `db:"id"`
	ProductID string    `db:"product_id"`
	URL       string    `db:"url"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// PostgresImages reads the image catalog and resolves product display data.
// It implements the worker's image resolver and the engine's product lookup.
type PostgresImages struct {
	db      *sqlx.DB
	fetcher *http.Client
	logger  observability.Logger
}

func NewPostgresImages(db *sqlx.DB, logger observability.Logger) *PostgresImages {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PostgresImages{
		db:      db,
		fetcher: &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Get returns the catalog record for a source image.
func (r *PostgresImages) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	query := `
		SELECT id, product_id, url, is_active, created_at
		FROM images
		WHERE id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get image %s: %w", id, err)
	}
	return &rec, nil
}

// Resolve downloads the raw bytes of an active source image.
func (r *PostgresImages) Resolve(ctx context.Context, sourceImageID string) ([]byte, error) {
	rec, err := r.Get(ctx, sourceImageID)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url for %s: %w", sourceImageID, err)
	}
	resp, err := r.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image %s: %w", sourceImageID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image %s returned status %d", sourceImageID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", sourceImageID, err)
	}
	return data, nil
}

// Lookup returns product display fields for a matched source image. Absent
// product data is not an error; the match simply carries no enrichment.
func (r *PostgresImages) Lookup(ctx context.Context, sourceImageID string) (map[string]any, error) {
	query := `
		SELECT p.id, p.name, p.price_per_day, p.currency
		FROM images i
		JOIN products p ON p.id = i.product_id
		WHERE i.id = $1`
	row := r.db.QueryRowxContext(ctx, query, sourceImageID)
	product := map[string]interface{}{}
	if err := row.MapScan(product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up product for image %s: %w", sourceImageID, err)
	}
	return product, nil
}
