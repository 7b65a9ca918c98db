package extraction

import (
	"context"
	"image"
	"math"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/vectormath"
)

// SignalDimension is the output dimension of the deterministic tier:
// 128 color-histogram bins, 64 gradient-orientation bins and a 64-cell
// edge-density grid.
const SignalDimension = 256

const signalGridSide = 64 // working raster for gradient and edge statistics

// SignalExtractor is the fallback3 tier: deterministic color, texture and
// edge statistics with no model and no network dependency. It is the
// guaranteed floor of the chain and succeeds on any decodable image.
type SignalExtractor struct{}

// NewSignalExtractor creates the deterministic tier.
func NewSignalExtractor() *SignalExtractor {
	return &SignalExtractor{}
}

// Method implements Extractor.
func (s *SignalExtractor) Method() models.ExtractionMethod {
	return models.MethodFallback3
}

// Extract implements Extractor.
func (s *SignalExtractor) Extract(ctx context.Context, imageData []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	vector := make([]float32, 0, SignalDimension)
	vector = append(vector, colorHistogram(img)...)

	gray := downsampleGray(img, signalGridSide)
	mag, orient := sobel(gray, signalGridSide)
	vector = append(vector, orientationHistogram(mag, orient)...)
	vector = append(vector, edgeDensityGrid(mag)...)

	normalized, ok := vectormath.Normalize(vector)
	return &Result{
		Vector:     normalized,
		Dimension:  SignalDimension,
		Method:     models.MethodFallback3,
		Normalized: ok,
	}, nil
}

// colorHistogram bins every pixel into an 8x4x4 HSV histogram (128 bins),
// normalized by pixel count.
func colorHistogram(img *image.RGBA) []float32 {
	hist := make([]float32, 128)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.RGBAAt(x, y)
			hue, sat, val := rgbToHSV(c.R, c.G, c.B)

			hb := int(hue / 45) // 8 hue bins over [0,360)
			if hb > 7 {
				hb = 7
			}
			sb := int(sat * 4)
			if sb > 3 {
				sb = 3
			}
			vb := int(val * 4)
			if vb > 3 {
				vb = 3
			}
			hist[hb*16+sb*4+vb]++
		}
	}

	total := float32(w * h)
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

// sobel computes gradient magnitude and orientation on the pooled raster.
func sobel(gray []float64, side int) (mag, orient []float64) {
	mag = make([]float64, side*side)
	orient = make([]float64, side*side)

	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= side {
			x = side - 1
		}
		if y >= side {
			y = side - 1
		}
		return gray[y*side+x]
	}

	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)

			i := y*side + x
			mag[i] = math.Hypot(gx, gy)
			orient[i] = math.Atan2(gy, gx) // [-pi, pi]
		}
	}
	return mag, orient
}

// orientationHistogram splits the raster into 2x4 spatial cells, each with
// an 8-bin magnitude-weighted orientation histogram (64 values).
func orientationHistogram(mag, orient []float64) []float32 {
	const rows, cols, bins = 2, 4, 8
	hist := make([]float64, rows*cols*bins)

	for y := 0; y < signalGridSide; y++ {
		cy := y * rows / signalGridSide
		for x := 0; x < signalGridSide; x++ {
			cx := x * cols / signalGridSide
			i := y*signalGridSide + x

			bin := int((orient[i] + math.Pi) / (2 * math.Pi) * bins)
			if bin >= bins {
				bin = bins - 1
			}
			hist[(cy*cols+cx)*bins+bin] += mag[i]
		}
	}

	var total float64
	for _, v := range hist {
		total += v
	}
	out := make([]float32, len(hist))
	if total > 0 {
		for i, v := range hist {
			out[i] = float32(v / total)
		}
	}
	return out
}

// edgeDensityGrid reports the fraction of edge pixels in each cell of an
// 8x8 grid (64 values).
func edgeDensityGrid(mag []float64) []float32 {
	const side, cells = signalGridSide, 8
	const edgeThreshold = 0.5

	counts := make([]float64, cells*cells)
	for y := 0; y < side; y++ {
		cy := y * cells / side
		for x := 0; x < side; x++ {
			cx := x * cells / side
			if mag[y*side+x] > edgeThreshold {
				counts[cy*cells+cx]++
			}
		}
	}

	perCell := float64((side / cells) * (side / cells))
	out := make([]float32, len(counts))
	for i, v := range counts {
		out[i] = float32(v / perCell)
	}
	return out
}

// rgbToHSV converts 8-bit RGB to hue [0,360), saturation and value [0,1].
func rgbToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	max := math.Max(r, math.Max(g, b))
	min := math.Min(r, math.Min(g, b))
	v = max
	delta := max - min

	if max > 0 {
		s = delta / max
	}
	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case r:
		h = 60 * math.Mod((g-b)/delta, 6)
	case g:
		h = 60 * ((b-r)/delta + 2)
	default:
		h = 60 * ((r-g)/delta + 4)
	}
	if h < 0 {
		h += 360
	}
	return h, s, v
}
