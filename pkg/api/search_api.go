// Package api exposes the similarity search subsystem over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/search"
)

// DefaultMaxImageBytes caps uploaded and fetched query images.
const DefaultMaxImageBytes = 10 << 20

// SearchAPI handles the visual similarity search endpoints.
type SearchAPI struct {
	engine        *search.Engine
	fetcher       *http.Client
	maxImageBytes int64
	logger        observability.Logger
}

// NewSearchAPI creates the API with the given engine.
func NewSearchAPI(engine *search.Engine, maxImageBytes int64, logger observability.Logger) *SearchAPI {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &SearchAPI{
		engine:        engine,
		fetcher:       &http.Client{Timeout: 10 * time.Second},
		maxImageBytes: maxImageBytes,
		logger:        logger,
	}
}

// RegisterRoutes registers search endpoints under the given group.
func (a *SearchAPI) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/images/search", a.searchByImage)
}

// searchByImage accepts either a multipart upload (field "image") or a JSON
// body with an image_url, plus threshold/page/limit parameters.
func (a *SearchAPI) searchByImage(c *gin.Context) {
	req, err := a.parseRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := a.engine.Search(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *SearchAPI) parseRequest(c *gin.Context) (*models.QueryRequest, error) {
	req := &models.QueryRequest{
		Threshold: 0.5,
		Page:      1,
		Limit:     models.DefaultSearchLimit,
	}

	if v := c.Query("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q", v)
		}
		req.Threshold = t
	}
	if v := c.Query("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", v)
		}
		req.Page = p
	}
	if v := c.Query("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		req.Limit = l
	}

	if file, err := c.FormFile("image"); err == nil {
		if file.Size > a.maxImageBytes {
			return nil, fmt.Errorf("image exceeds %d byte limit", a.maxImageBytes)
		}
		f, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		data, err := io.ReadAll(io.LimitReader(f, a.maxImageBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		req.ImageData = data
		return req, req.Validate()
	}

	var body struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.ShouldBindJSON(&body); err == nil && body.ImageURL != "" {
		data, err := a.fetchImage(c.Request.Context(), body.ImageURL)
		if err != nil {
			return nil, err
		}
		req.ImageURL = body.ImageURL
		req.ImageData = data
		return req, req.Validate()
	}

	return nil, fmt.Errorf("an image file or image_url is required")
}

// fetchImage downloads a query image referenced by URL.
func (a *SearchAPI) fetchImage(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image_url: %w", err)
	}
	resp, err := a.fetcher.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image_url: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image_url returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, a.maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image_url: %w", err)
	}
	return data, nil
}

// writeError maps the error taxonomy to HTTP. A total subsystem failure is
// a distinct 503, never conflated with "no matches found" (which is a 200
// with an empty list).
func (a *SearchAPI) writeError(c *gin.Context, err error) {
	switch apperrors.ClassOf(err) {
	case apperrors.ClassValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.ClassNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		a.logger.Error("search failed", map[string]interface{}{
			"error": err.Error(),
		})
		if errors.Is(err, apperrors.ErrSearchUnavailable) || apperrors.ClassOf(err) == apperrors.ClassTransient {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search temporarily unavailable"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
