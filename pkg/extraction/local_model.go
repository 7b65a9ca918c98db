package extraction

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/vectormath"
)

// LocalModelDimension is the output dimension of the compact local model.
const LocalModelDimension = 1280

// localModelMagic identifies the weights file format.
const localModelMagic = "UVM1"

// localModel holds the loaded projection weights. It is process-wide,
// loaded once and read-only thereafter.
type localModel struct {
	inputSide int // grayscale grid is inputSide x inputSide
	outputDim int
	weights   []float32 // outputDim rows of inputSide*inputSide
}

// LocalModelExtractor is the fallback2 tier: an in-process compact vision
// model projecting a pooled grayscale raster into a 1280-d feature space.
// The weights file is lazily loaded on first use and cached for the process
// lifetime; if loading fails the tier reports itself unavailable and the
// chain moves on.
type LocalModelExtractor struct {
	weightsPath string
	logger      observability.Logger

	loadOnce sync.Once
	model    *localModel
	loadErr  error
}

// NewLocalModelExtractor creates the tier. The model is not loaded until the
// first Extract call.
func NewLocalModelExtractor(weightsPath string, logger observability.Logger) *LocalModelExtractor {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &LocalModelExtractor{weightsPath: weightsPath, logger: logger}
}

// Method implements Extractor.
func (l *LocalModelExtractor) Method() models.ExtractionMethod {
	return models.MethodFallback2
}

// Extract implements Extractor.
func (l *LocalModelExtractor) Extract(ctx context.Context, imageData []byte) (*Result, error) {
	model, err := l.load()
	if err != nil {
		return nil, apperrors.Wrap(err, "LOCAL_MODEL_UNAVAILABLE", "local model not loaded", apperrors.ClassTransient)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	input := downsampleGray(img, model.inputSide)

	// Mean-center so the projection reacts to structure, not brightness.
	var mean float64
	for _, v := range input {
		mean += v
	}
	mean /= float64(len(input))
	for i := range input {
		input[i] -= mean
	}

	inputDim := model.inputSide * model.inputSide
	vector := make([]float32, model.outputDim)
	for j := 0; j < model.outputDim; j++ {
		row := model.weights[j*inputDim : (j+1)*inputDim]
		var sum float64
		for i, x := range input {
			sum += float64(row[i]) * x
		}
		vector[j] = float32(math.Tanh(sum))
	}

	normalized, ok := vectormath.Normalize(vector)
	return &Result{
		Vector:     normalized,
		Dimension:  model.outputDim,
		Method:     models.MethodFallback2,
		Normalized: ok,
	}, nil
}

// load initializes the model exactly once, concurrent-first-use safe.
func (l *LocalModelExtractor) load() (*localModel, error) {
	l.loadOnce.Do(func() {
		l.model, l.loadErr = loadLocalModel(l.weightsPath)
		if l.loadErr != nil {
			l.logger.Warn("local model unavailable", map[string]interface{}{
				"path":  l.weightsPath,
				"error": l.loadErr.Error(),
			})
			return
		}
		l.logger.Info("local model loaded", map[string]interface{}{
			"path":      l.weightsPath,
			"dimension": l.model.outputDim,
		})
	})
	return l.model, l.loadErr
}

func loadLocalModel(path string) (*localModel, error) {
	if path == "" {
		return nil, fmt.Errorf("no weights path configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open weights file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var header struct {
		Magic     [4]byte
		InputSide int32
		OutputDim int32
	}
	if err := binary.Read(f, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read weights header: %w", err)
	}
	if string(header.Magic[:]) != localModelMagic {
		return nil, fmt.Errorf("unrecognized weights file magic %q", header.Magic)
	}
	if header.InputSide <= 0 || header.OutputDim <= 0 {
		return nil, fmt.Errorf("invalid weights header: input_side=%d output_dim=%d", header.InputSide, header.OutputDim)
	}

	model := &localModel{
		inputSide: int(header.InputSide),
		outputDim: int(header.OutputDim),
	}
	model.weights = make([]float32, model.inputSide*model.inputSide*model.outputDim)
	if err := binary.Read(f, binary.LittleEndian, &model.weights); err != nil {
		return nil, fmt.Errorf("failed to read weights: %w", err)
	}
	return model, nil
}
