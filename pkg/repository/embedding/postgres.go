package embedding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/vectormath"
)

// PostgresStore implements Store on PostgreSQL. When the pgvector extension
// is present, similarity ranking and top-K selection are delegated to the
// database; otherwise a bounded scan is ranked in-process. A native-path
// failure also falls back to the scan once for the same request before
// surfacing an error.
type PostgresStore struct {
	db        *sqlx.DB
	hasVector bool
	scanCap   int
	ranker    *vectormath.Ranker
	logger    observability.Logger
}

// NewPostgresStore creates the store and probes for pgvector support.
func NewPostgresStore(db *sqlx.DB, scanCap int, logger observability.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	if scanCap <= 0 {
		scanCap = DefaultScanCap
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var hasVector bool
	if err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&hasVector); err != nil {
		return nil, fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !hasVector {
		logger.Warn("pgvector extension not installed, similarity queries will use the scan fallback", nil)
	}

	return &PostgresStore{
		db:        db,
		hasVector: hasVector,
		scanCap:   scanCap,
		ranker:    vectormath.NewRanker(logger.WithPrefix("ranker")),
		logger:    logger,
	}, nil
}

// Create stores a new embedding.
func (s *PostgresStore) Create(ctx context.Context, emb *models.ImageEmbedding) error {
	if err := emb.Validate(); err != nil {
		return apperrors.Wrap(err, "VALIDATION", "invalid embedding", apperrors.ClassValidation)
	}
	if emb.ID == "" {
		emb.ID = uuid.New().String()
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO image_embeddings (
			id, source_image_id, vector, dimension, extraction_method, normalized, created_at
		) VALUES ($1, $2, $3::vector, $4, $5, $6, $7)`
	if !s.hasVector {
		query = strings.Replace(query, "$3::vector", "$3", 1)
	}

	_, err := s.db.ExecContext(ctx, query,
		emb.ID, emb.SourceImageID, formatVector(emb.Vector),
		emb.Dimension, emb.ExtractionMethod, emb.Normalized, emb.CreatedAt)
	if err != nil {
		return apperrors.Storage(fmt.Errorf("failed to store embedding: %w", err))
	}
	return nil
}

// Get retrieves an embedding by id, including its vector.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ImageEmbedding, error) {
	row := struct {
		ID               string                  `db:"id"`
		SourceImageID    string                  `db:"source_image_id"`
		Vector           string                  `db:"vector"`
		Dimension        int                     `db:"dimension"`
		ExtractionMethod models.ExtractionMethod `db:"extraction_method"`
		Normalized       bool                    `db:"normalized"`
		CreatedAt        time.Time               `db:"created_at"`
	}{}

	err := s.db.GetContext(ctx, &row, `
		SELECT id, source_image_id, vector::text AS vector, dimension,
		       extraction_method, normalized, created_at
		FROM image_embeddings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("failed to get embedding: %w", err))
	}

	vector, err := parseVector(row.Vector)
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("failed to parse stored vector %s: %w", row.ID, err))
	}
	return &models.ImageEmbedding{
		ID:               row.ID,
		SourceImageID:    row.SourceImageID,
		Vector:           vector,
		Dimension:        row.Dimension,
		ExtractionMethod: row.ExtractionMethod,
		Normalized:       row.Normalized,
		CreatedAt:        row.CreatedAt,
	}, nil
}

// Delete removes an embedding by id.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM image_embeddings WHERE id = $1`, id); err != nil {
		return apperrors.Storage(fmt.Errorf("failed to delete embedding: %w", err))
	}
	return nil
}

// DeleteBySourceImage removes all embeddings of a source image.
func (s *PostgresStore) DeleteBySourceImage(ctx context.Context, sourceImageID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM image_embeddings WHERE source_image_id = $1`, sourceImageID); err != nil {
		return apperrors.Storage(fmt.Errorf("failed to delete embeddings for image %s: %w", sourceImageID, err))
	}
	return nil
}

// Replace supersedes all embeddings of the source image with emb in one
// transaction, so readers never observe the image with both records.
func (s *PostgresStore) Replace(ctx context.Context, emb *models.ImageEmbedding) error {
	if err := emb.Validate(); err != nil {
		return apperrors.Wrap(err, "VALIDATION", "invalid embedding", apperrors.ClassValidation)
	}
	if emb.ID == "" {
		emb.ID = uuid.New().String()
	}
	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Storage(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM image_embeddings WHERE source_image_id = $1`, emb.SourceImageID); err != nil {
		return apperrors.Storage(fmt.Errorf("failed to supersede embeddings: %w", err))
	}

	insert := `
		INSERT INTO image_embeddings (
			id, source_image_id, vector, dimension, extraction_method, normalized, created_at
		) VALUES ($1, $2, $3::vector, $4, $5, $6, $7)`
	if !s.hasVector {
		insert = strings.Replace(insert, "$3::vector", "$3", 1)
	}
	if _, err := tx.ExecContext(ctx, insert,
		emb.ID, emb.SourceImageID, formatVector(emb.Vector),
		emb.Dimension, emb.ExtractionMethod, emb.Normalized, emb.CreatedAt); err != nil {
		return apperrors.Storage(fmt.Errorf("failed to store replacement embedding: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Storage(fmt.Errorf("failed to commit replacement: %w", err))
	}
	return nil
}

// Search ranks stored embeddings of the query's cohort against queryVector.
func (s *PostgresStore) Search(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]Candidate, error) {
	if len(queryVector) != cohort.Dimension {
		return nil, apperrors.Validation(fmt.Sprintf(
			"query vector length %d does not match cohort dimension %d", len(queryVector), cohort.Dimension))
	}
	if limit <= 0 {
		limit = s.scanCap
	}

	if s.hasVector {
		candidates, err := s.nativeSearch(ctx, queryVector, cohort, threshold, limit)
		if err == nil {
			return candidates, nil
		}
		// One-shot downgrade for this request; the scan path answers from
		// plain rows and may still succeed.
		s.logger.Warn("native vector query failed, retrying via scan", map[string]interface{}{
			"cohort": cohort.String(),
			"error":  err.Error(),
		})
	}
	return s.scanSearch(ctx, queryVector, cohort, threshold, limit)
}

// nativeSearch delegates ranking and top-K selection to pgvector. Only
// identifiers, metadata and scores cross the wire, never vector payloads.
func (s *PostgresStore) nativeSearch(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]Candidate, error) {
	// Cosine similarity goes negative for opposing vectors; clamp before the
	// threshold comparison so both search strategies admit the same rows.
	query := `
		SELECT id, source_image_id, created_at,
		       GREATEST((1 - (vector <=> $1::vector))::float, 0) AS score
		FROM image_embeddings
		WHERE extraction_method = $2
		  AND dimension = $3
		  AND GREATEST((1 - (vector <=> $1::vector))::float, 0) >= $4
		ORDER BY score DESC, created_at DESC
		LIMIT $5`

	var candidates []Candidate
	err := s.db.SelectContext(ctx, &candidates, query,
		formatVector(queryVector), cohort.Method, cohort.Dimension, threshold, limit)
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("native vector query failed: %w", err))
	}

	// GREATEST handles the negative side in SQL; near-identical vectors can
	// still nudge a hair past 1, so clamp the upper bound here.
	for i := range candidates {
		candidates[i].Score = vectormath.Clamp01(candidates[i].Score)
	}
	return candidates, nil
}

// scanSearch fetches a bounded candidate set including raw vectors and ranks
// it in-process.
func (s *PostgresStore) scanSearch(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]Candidate, error) {
	type scanRow struct {
		ID            string    `db:"id"`
		SourceImageID string    `db:"source_image_id"`
		Vector        string    `db:"vector"`
		Normalized    bool      `db:"normalized"`
		CreatedAt     time.Time `db:"created_at"`
	}

	var rows []scanRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, source_image_id, vector::text AS vector, normalized, created_at
		FROM image_embeddings
		WHERE extraction_method = $1 AND dimension = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		cohort.Method, cohort.Dimension, s.scanCap)
	if err != nil {
		return nil, apperrors.Storage(fmt.Errorf("scan query failed: %w", err))
	}

	embeddings := make([]*models.ImageEmbedding, 0, len(rows))
	for _, row := range rows {
		vector, err := parseVector(row.Vector)
		if err != nil {
			s.logger.Warn("skipping embedding with unparsable vector", map[string]interface{}{
				"embedding_id": row.ID,
				"error":        err.Error(),
			})
			continue
		}
		embeddings = append(embeddings, &models.ImageEmbedding{
			ID:               row.ID,
			SourceImageID:    row.SourceImageID,
			Vector:           vector,
			Dimension:        cohort.Dimension,
			ExtractionMethod: cohort.Method,
			Normalized:       row.Normalized,
			CreatedAt:        row.CreatedAt,
		})
	}

	scored := s.ranker.Rank(queryVector, embeddings, threshold)
	if len(scored) > limit {
		scored = scored[:limit]
	}

	candidates := make([]Candidate, len(scored))
	for i, sc := range scored {
		candidates[i] = Candidate{
			ID:            sc.Embedding.ID,
			SourceImageID: sc.Embedding.SourceImageID,
			Score:         sc.Score,
			CreatedAt:     sc.Embedding.CreatedAt,
		}
	}
	return candidates, nil
}

// ListBacklog finds source images that have no embedding or whose best
// embedding ranks below the preferred tier.
func (s *PostgresStore) ListBacklog(ctx context.Context, preferred models.ExtractionMethod, batchSize int) ([]BacklogItem, error) {
	if batchSize <= 0 {
		batchSize = 10
	}

	query := `
		SELECT i.id AS source_image_id,
		       COALESCE(MIN(e.extraction_method), '') AS current_method
		FROM images i
		LEFT JOIN image_embeddings e ON e.source_image_id = i.id
		WHERE i.is_active
		GROUP BY i.id
		HAVING COUNT(e.id) = 0
		    OR MIN(CASE e.extraction_method
		               WHEN 'primary' THEN 0
		               WHEN 'fallback2' THEN 1
		               ELSE 2
		           END) > $1
		ORDER BY i.id
		LIMIT $2`

	var items []BacklogItem
	if err := s.db.SelectContext(ctx, &items, query, preferred.Rank(), batchSize); err != nil {
		return nil, apperrors.Storage(fmt.Errorf("backlog query failed: %w", err))
	}
	return items, nil
}

// formatVector renders a vector in pgvector text form: [x1,x2,...].
func formatVector(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// parseVector parses pgvector text form back into a float32 slice.
func parseVector(text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal")
	}
	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return nil, fmt.Errorf("empty vector literal")
	}

	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("bad vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
