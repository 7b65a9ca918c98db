package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/cache"
	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/search"
)

type fixedExtractor struct {
	err error
}

func (f *fixedExtractor) Method() models.ExtractionMethod { return models.MethodPrimary }

func (f *fixedExtractor) Extract(ctx context.Context, imageData []byte) (*extraction.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &extraction.Result{
		Vector:     []float32{1, 0},
		Dimension:  2,
		Method:     models.MethodPrimary,
		Normalized: true,
	}, nil
}

type fixedStore struct {
	candidates []embstore.Candidate
}

func (s *fixedStore) Create(ctx context.Context, emb *models.ImageEmbedding) error { return nil }
func (s *fixedStore) Get(ctx context.Context, id string) (*models.ImageEmbedding, error) {
	return nil, embstore.ErrNotFound
}
func (s *fixedStore) Delete(ctx context.Context, id string) error                   { return nil }
func (s *fixedStore) DeleteBySourceImage(ctx context.Context, id string) error      { return nil }
func (s *fixedStore) Replace(ctx context.Context, emb *models.ImageEmbedding) error { return nil }
func (s *fixedStore) ListBacklog(ctx context.Context, preferred models.ExtractionMethod, batchSize int) ([]embstore.BacklogItem, error) {
	return nil, nil
}

func (s *fixedStore) Search(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]embstore.Candidate, error) {
	return s.candidates, nil
}

func newTestRouter(t *testing.T, ex extraction.Extractor, store embstore.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := extraction.NewChain(nil, ex)
	results := search.NewResultCache(cache.NewLRUCache(16, time.Minute), time.Minute, nil)
	engine := search.NewEngine(search.DefaultConfig(), chain, ex, store, results, nil, nil, nil, nil)

	router := gin.New()
	NewSearchAPI(engine, 0, nil).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func multipartBody(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "query.jpg")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestSearchByImageUpload(t *testing.T) {
	router := newTestRouter(t, &fixedExtractor{}, &fixedStore{candidates: []embstore.Candidate{
		{ID: "e1", SourceImageID: "img1", Score: 0.93},
	}})

	body, contentType := multipartBody(t, "image", []byte("image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search?threshold=0.6&page=1&limit=10", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "img1", result.Matches[0].SourceImageID)
	assert.InDelta(t, 0.6, result.Metadata.ThresholdUsed, 1e-9)
	assert.Equal(t, models.MethodPrimary, result.Metadata.ExtractionMethodUsed)
}

func TestSearchByImageURL(t *testing.T) {
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("remote image bytes"))
	}))
	defer imageSrv.Close()

	router := newTestRouter(t, &fixedExtractor{}, &fixedStore{})

	payload, err := json.Marshal(map[string]string{"image_url": imageSrv.URL + "/photo.jpg"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSearchEmptyMatchesIsOK(t *testing.T) {
	router := newTestRouter(t, &fixedExtractor{}, &fixedStore{})

	body, contentType := multipartBody(t, "image", []byte("image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Empty(t, result.Matches)
}

func TestSearchRejectsBadParameters(t *testing.T) {
	router := newTestRouter(t, &fixedExtractor{}, &fixedStore{})

	cases := []string{
		"/api/v1/images/search?threshold=abc",
		"/api/v1/images/search?threshold=1.5",
		"/api/v1/images/search?page=0",
		"/api/v1/images/search?limit=101",
	}
	for _, url := range cases {
		body, contentType := multipartBody(t, "image", []byte("image bytes"))
		req := httptest.NewRequest(http.MethodPost, url, body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, url)
	}
}

func TestSearchRequiresAnImage(t *testing.T) {
	router := newTestRouter(t, &fixedExtractor{}, &fixedStore{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchUnavailableMapsTo503(t *testing.T) {
	down := &fixedExtractor{err: apperrors.New("EXTRACTION_UNAVAILABLE", "down", apperrors.ClassTransient)}
	router := newTestRouter(t, down, &fixedStore{})

	body, contentType := multipartBody(t, "image", []byte("image bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "search temporarily unavailable")
}

func TestSearchRejectedImageMapsTo400(t *testing.T) {
	bad := &fixedExtractor{err: apperrors.Validation("unreadable or unsupported image")}
	router := newTestRouter(t, bad, &fixedStore{})

	body, contentType := multipartBody(t, "image", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/search", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
