package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/vectormath"
)

// ServiceConfig configures the client for the external inference service.
type ServiceConfig struct {
	BaseURL        string                          `mapstructure:"base_url"`
	RequestTimeout time.Duration                   `mapstructure:"request_timeout"`
	MaxAttempts    int                             `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration                   `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration                   `mapstructure:"retry_max_delay"`
	Breaker        resilience.CircuitBreakerConfig `mapstructure:"breaker"`
	HealthInterval time.Duration                   `mapstructure:"health_interval"`
}

// DefaultServiceConfig returns the default gateway settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		RequestTimeout: 8 * time.Second,
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  10 * time.Second,
		Breaker:        resilience.DefaultCircuitBreakerConfig(),
		HealthInterval: 15 * time.Second,
	}
}

// ServiceExtractor is the primary extraction tier: a resilient client for
// the external inference service. Transient failures are retried with
// exponential backoff; repeated failures trip the circuit breaker so callers
// fail fast instead of piling onto a down dependency.
//
// The extractor never falls back on its own. When the service cannot be
// reached it returns ErrExtractionUnavailable and leaves tier selection to
// the search engine.
type ServiceExtractor struct {
	config  ServiceConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  observability.Logger
	metrics observability.MetricsClient
}

type extractResponse struct {
	Success   bool      `json:"success"`
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	ModelID   string    `json:"model_id,omitempty"`
}

type batchItemResponse struct {
	Filename  string    `json:"filename"`
	Success   bool      `json:"success"`
	Embedding []float32 `json:"embedding,omitempty"`
	Dimension int       `json:"dimension,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type batchExtractResponse struct {
	Success bool                `json:"success"`
	Results []batchItemResponse `json:"results"`
}

type healthResponse struct {
	Status             string `json:"status"`
	ModelLoaded        bool   `json:"model_loaded"`
	Device             string `json:"device"`
	ModelName          string `json:"model_name,omitempty"`
	EmbeddingDimension int    `json:"embedding_dimension,omitempty"`
}

// NewServiceExtractor creates the gateway. Outbound connections are pooled
// and kept alive to avoid per-call setup cost.
func NewServiceExtractor(config ServiceConfig, logger observability.Logger, metrics observability.MetricsClient) (*ServiceExtractor, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("inference service base URL is required")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 8 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBaseDelay == 0 {
		config.RetryBaseDelay = time.Second
	}
	if config.RetryMaxDelay == 0 {
		config.RetryMaxDelay = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &ServiceExtractor{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
		breaker: resilience.NewCircuitBreaker("inference-service", config.Breaker, logger.WithPrefix("circuit_breaker")),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Method implements Extractor.
func (s *ServiceExtractor) Method() models.ExtractionMethod {
	return models.MethodPrimary
}

// Breaker exposes the circuit breaker for the health monitor.
func (s *ServiceExtractor) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// Extract obtains a feature vector from the inference service.
//
// Only transient failures (timeouts, connection errors, 5xx) are retried;
// validation failures surface immediately. When the breaker is open or every
// attempt fails, the error is ErrExtractionUnavailable so the caller can
// move down the tier chain.
func (s *ServiceExtractor) Extract(ctx context.Context, imageData []byte) (*Result, error) {
	start := time.Now()
	var out *Result

	operation := func() error {
		if err := s.breaker.Allow(); err != nil {
			// Fail fast until the cooldown or health monitor reopens traffic.
			return backoff.Permanent(err)
		}

		res, err := s.doExtract(ctx, imageData)
		if err != nil {
			if countsAgainstBreaker(err) {
				s.breaker.RecordFailure()
			}
			if !apperrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			s.logger.Warn("inference call failed, will retry", map[string]interface{}{
				"error": err.Error(),
			})
			return err
		}

		s.breaker.RecordSuccess()
		out = res
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.RetryBaseDelay
	policy.MaxInterval = s.config.RetryMaxDelay
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0 // bounded by attempt count and ctx

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.config.MaxAttempts-1)), ctx))

	s.metrics.RecordLatency("extraction_primary", time.Since(start))

	if err != nil {
		if apperrors.ClassOf(err) == apperrors.ClassValidation {
			return nil, err
		}
		s.metrics.IncrementCounter("extraction_unavailable_total", 1, map[string]string{"tier": "primary"})
		return nil, apperrors.Wrap(err, "EXTRACTION_UNAVAILABLE", "inference service unavailable", apperrors.ClassTransient)
	}
	return out, nil
}

func (s *ServiceExtractor) doExtract(ctx context.Context, imageData []byte) (*Result, error) {
	body, contentType, err := encodeMultipart("file", "query.jpg", imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/extract-features", body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, "INFERENCE_CONN", "inference service request failed", apperrors.ClassTransient)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}

	var parsed extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(err, "INFERENCE_DECODE", "invalid inference service response", apperrors.ClassTransient)
	}
	return s.toResult(parsed.Embedding, parsed.Dimension)
}

// ExtractBatch sends multiple images in one request. Per-image failures come
// back as nil entries; only a transport-level failure errors the whole call.
// Used by the precompute worker to respect the service's capacity.
func (s *ServiceExtractor) ExtractBatch(ctx context.Context, images [][]byte) ([]*Result, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if err := s.breaker.Allow(); err != nil {
		return nil, apperrors.Wrap(err, "EXTRACTION_UNAVAILABLE", "inference service unavailable", apperrors.ClassTransient)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for i, img := range images {
		part, err := writer.CreateFormFile("files", fmt.Sprintf("image-%d.jpg", i))
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch body: %w", err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, fmt.Errorf("failed to encode batch body: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode batch body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/extract-features-batch", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		s.breaker.RecordFailure()
		return nil, apperrors.Wrap(err, "INFERENCE_CONN", "inference service request failed", apperrors.ClassTransient)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := classifyStatus(resp.StatusCode, resp.Body); err != nil {
		if countsAgainstBreaker(err) {
			s.breaker.RecordFailure()
		}
		return nil, err
	}
	s.breaker.RecordSuccess()

	var parsed batchExtractResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Wrap(err, "INFERENCE_DECODE", "invalid inference service response", apperrors.ClassTransient)
	}

	results := make([]*Result, len(images))
	for i, item := range parsed.Results {
		if i >= len(results) {
			break
		}
		if !item.Success {
			s.logger.Warn("batch item failed on inference service", map[string]interface{}{
				"index": i,
				"error": item.Error,
			})
			continue
		}
		res, err := s.toResult(item.Embedding, item.Dimension)
		if err != nil {
			s.logger.Warn("discarding malformed batch item", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		results[i] = res
	}
	return results, nil
}

// Healthy probes the inference service health endpoint.
func (s *ServiceExtractor) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.Wrap(err, "INFERENCE_CONN", "health probe failed", apperrors.ClassTransient)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service health returned status %d", resp.StatusCode)
	}

	var parsed healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("invalid health response: %w", err)
	}
	if parsed.Status != "healthy" || !parsed.ModelLoaded {
		return fmt.Errorf("inference service unhealthy: status=%s model_loaded=%t", parsed.Status, parsed.ModelLoaded)
	}
	return nil
}

// toResult normalizes and tags the service vector.
func (s *ServiceExtractor) toResult(vector []float32, dimension int) (*Result, error) {
	if len(vector) == 0 || len(vector) != dimension {
		return nil, apperrors.Wrap(
			fmt.Errorf("vector length %d, declared dimension %d", len(vector), dimension),
			"INFERENCE_DECODE", "inference service returned inconsistent vector", apperrors.ClassTransient)
	}
	normalized, ok := vectormath.Normalize(vector)
	return &Result{
		Vector:     normalized,
		Dimension:  dimension,
		Method:     models.MethodPrimary,
		Normalized: ok,
	}, nil
}

func encodeMultipart(field, filename string, data []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy: 4xx means
// the request itself is bad (not retried), everything else transient.
func classifyStatus(status int, body io.Reader) error {
	if status == http.StatusOK {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(body, 512))
	err := fmt.Errorf("inference service returned status %d: %s", status, bytes.TrimSpace(detail))

	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return apperrors.Wrap(err, "INFERENCE_REJECTED", "inference service rejected the image", apperrors.ClassValidation)
	}
	return apperrors.Wrap(err, "INFERENCE_STATUS", "inference service error", apperrors.ClassTransient)
}

// countsAgainstBreaker reports whether the failure says something about the
// dependency's health. A rejected image does not.
func countsAgainstBreaker(err error) bool {
	switch apperrors.ClassOf(err) {
	case apperrors.ClassValidation, apperrors.ClassNotFound:
		return false
	default:
		return true
	}
}
