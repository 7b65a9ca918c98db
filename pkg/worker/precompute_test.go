package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
)

type recordingStore struct {
	mu       sync.Mutex
	backlog  []embstore.BacklogItem
	created  []*models.ImageEmbedding
	replaced []*models.ImageEmbedding
}

func (s *recordingStore) Create(ctx context.Context, emb *models.ImageEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, emb)
	return nil
}

func (s *recordingStore) Get(ctx context.Context, id string) (*models.ImageEmbedding, error) {
	return nil, embstore.ErrNotFound
}
func (s *recordingStore) Delete(ctx context.Context, id string) error              { return nil }
func (s *recordingStore) DeleteBySourceImage(ctx context.Context, id string) error { return nil }

func (s *recordingStore) Replace(ctx context.Context, emb *models.ImageEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaced = append(s.replaced, emb)
	return nil
}

func (s *recordingStore) Search(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]embstore.Candidate, error) {
	return nil, nil
}

func (s *recordingStore) ListBacklog(ctx context.Context, preferred models.ExtractionMethod, batchSize int) ([]embstore.BacklogItem, error) {
	if len(s.backlog) > batchSize {
		return s.backlog[:batchSize], nil
	}
	return s.backlog, nil
}

// scriptedResolver returns fixed bytes per image id.
type scriptedResolver struct {
	images map[string][]byte
}

func (r *scriptedResolver) Resolve(ctx context.Context, sourceImageID string) ([]byte, error) {
	data, ok := r.images[sourceImageID]
	if !ok {
		return nil, fmt.Errorf("image %s not found", sourceImageID)
	}
	return data, nil
}

// tierStub pretends to be one extraction tier.
type tierStub struct {
	method models.ExtractionMethod
	err    error
}

func (s *tierStub) Method() models.ExtractionMethod { return s.method }

func (s *tierStub) Extract(ctx context.Context, imageData []byte) (*extraction.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &extraction.Result{
		Vector:     []float32{1, 0},
		Dimension:  2,
		Method:     s.method,
		Normalized: true,
	}, nil
}

// batcherStub answers whole cycles in one call; a nil result function slot
// marks an image the batch could not handle.
type batcherStub struct {
	mu    sync.Mutex
	calls int
	sizes []int
	err   error
	skip  map[int]bool
}

func (b *batcherStub) ExtractBatch(ctx context.Context, images [][]byte) ([]*extraction.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.sizes = append(b.sizes, len(images))
	if b.err != nil {
		return nil, b.err
	}
	results := make([]*extraction.Result, len(images))
	for i := range images {
		if b.skip[i] {
			continue
		}
		results[i] = &extraction.Result{
			Vector:     []float32{1, 0},
			Dimension:  2,
			Method:     models.MethodPrimary,
			Normalized: true,
		}
	}
	return results, nil
}

func newWorker(store *recordingStore, resolver *scriptedResolver, tiers ...extraction.Extractor) *PrecomputeWorker {
	return NewPrecomputeWorker(DefaultConfig(), store, extraction.NewChain(nil, tiers...), nil, resolver, nil, nil, nil)
}

func newBatchWorker(store *recordingStore, resolver *scriptedResolver, batcher Batcher, tiers ...extraction.Extractor) *PrecomputeWorker {
	return NewPrecomputeWorker(DefaultConfig(), store, extraction.NewChain(nil, tiers...), batcher, resolver, nil, nil, nil)
}

func TestRunOnceCreatesMissingEmbeddings(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1"},
		{SourceImageID: "img2"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{
		"img1": []byte("a"),
		"img2": []byte("b"),
	}}
	w := newWorker(store, resolver, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()))

	require.Len(t, store.created, 2)
	assert.Empty(t, store.replaced)
	assert.Equal(t, models.MethodPrimary, store.created[0].ExtractionMethod)
}

func TestRunOnceUpgradesLowerTier(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1", CurrentMethod: models.MethodFallback3},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{"img1": []byte("a")}}
	w := newWorker(store, resolver, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Empty(t, store.created, "upgrades go through the transactional replace")
	require.Len(t, store.replaced, 1)
	assert.Equal(t, models.MethodPrimary, store.replaced[0].ExtractionMethod)
}

func TestRunOnceSkipsWhenExtractionDoesNotImprove(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1", CurrentMethod: models.MethodFallback2},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{"img1": []byte("a")}}
	// Primary is down; only the floor answers, which is worse than what is stored.
	w := newWorker(store, resolver,
		&tierStub{method: models.MethodPrimary, err: apperrors.New("EXTRACTION_UNAVAILABLE", "down", apperrors.ClassTransient)},
		&tierStub{method: models.MethodFallback3})

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Empty(t, store.created)
	assert.Empty(t, store.replaced, "a sideways or downward move is never written")
}

func TestRunOnceSkipsFailedImageAndContinues(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "missing"},
		{SourceImageID: "img2"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{"img2": []byte("b")}}
	w := newWorker(store, resolver, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()), "per-image failures do not fail the run")
	require.Len(t, store.created, 1)
	assert.Equal(t, "img2", store.created[0].SourceImageID)
}

func TestRunOnceHonorsBatchSize(t *testing.T) {
	backlog := make([]embstore.BacklogItem, 25)
	images := map[string][]byte{}
	for i := range backlog {
		id := fmt.Sprintf("img-%d", i)
		backlog[i] = embstore.BacklogItem{SourceImageID: id}
		images[id] = []byte(id)
	}
	store := &recordingStore{backlog: backlog}
	w := newWorker(store, &scriptedResolver{images: images}, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Len(t, store.created, DefaultConfig().BatchSize)
}

func TestRunOnceExtractsWholeCycleInOneBatch(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1"},
		{SourceImageID: "img2"},
		{SourceImageID: "img3"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{
		"img1": []byte("a"),
		"img2": []byte("b"),
		"img3": []byte("c"),
	}}
	batcher := &batcherStub{}
	failing := &tierStub{method: models.MethodPrimary,
		err: apperrors.New("EXTRACTION_UNAVAILABLE", "down", apperrors.ClassTransient)}
	w := newBatchWorker(store, resolver, batcher, failing)

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, 1, batcher.calls, "one request covers the whole cycle")
	assert.Equal(t, []int{3}, batcher.sizes)
	require.Len(t, store.created, 3)
	assert.Equal(t, models.MethodPrimary, store.created[0].ExtractionMethod)
}

func TestRunOnceBatchGapsFallBackToChain(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1"},
		{SourceImageID: "img2"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{
		"img1": []byte("a"),
		"img2": []byte("b"),
	}}
	batcher := &batcherStub{skip: map[int]bool{1: true}}
	w := newBatchWorker(store, resolver, batcher, &tierStub{method: models.MethodFallback3})

	require.NoError(t, w.RunOnce(context.Background()))

	require.Len(t, store.created, 2)
	methods := map[string]models.ExtractionMethod{}
	for _, emb := range store.created {
		methods[emb.SourceImageID] = emb.ExtractionMethod
	}
	assert.Equal(t, models.MethodPrimary, methods["img1"], "answered by the batch")
	assert.Equal(t, models.MethodFallback3, methods["img2"], "filled by the per-image chain")
}

func TestRunOnceBatchFailureFallsBackPerImage(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "img1"},
		{SourceImageID: "img2"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{
		"img1": []byte("a"),
		"img2": []byte("b"),
	}}
	batcher := &batcherStub{err: apperrors.New("EXTRACTION_UNAVAILABLE", "down", apperrors.ClassTransient)}
	w := newBatchWorker(store, resolver, batcher, &tierStub{method: models.MethodFallback3})

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, 1, batcher.calls)
	require.Len(t, store.created, 2)
	assert.Equal(t, models.MethodFallback3, store.created[0].ExtractionMethod)
}

func TestRunOnceBatchSkipsUnresolvableImages(t *testing.T) {
	store := &recordingStore{backlog: []embstore.BacklogItem{
		{SourceImageID: "missing"},
		{SourceImageID: "img2"},
	}}
	resolver := &scriptedResolver{images: map[string][]byte{"img2": []byte("b")}}
	batcher := &batcherStub{}
	w := newBatchWorker(store, resolver, batcher, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()))

	assert.Equal(t, []int{1}, batcher.sizes, "unresolvable images never reach the batch")
	require.Len(t, store.created, 1)
	assert.Equal(t, "img2", store.created[0].SourceImageID)
}

func TestRunOnceEmptyBacklogIsNoop(t *testing.T) {
	store := &recordingStore{}
	w := newWorker(store, &scriptedResolver{}, &tierStub{method: models.MethodPrimary})

	require.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, store.created)
}
