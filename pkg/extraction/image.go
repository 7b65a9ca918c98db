package extraction

import (
	"bytes"
	"image"
	"image/color"

	// Registered decoders for the formats the catalog accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
)

// decodeImage decodes the supported formats into an RGBA raster. Alpha is
// composited over white, matching the RGBA-to-RGB conversion the inference
// service applies on its side.
func decodeImage(data []byte) (*image.RGBA, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, "VALIDATION", "unreadable or unsupported image", apperrors.ClassValidation)
	}

	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, apperrors.Validation("image has zero size")
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := src.At(x, y).RGBA()
			if a == 0 {
				rgba.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
				continue
			}
			rgba.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{
				R: uint8(r >> 8),
				G: uint8(g >> 8),
				B: uint8(b >> 8),
				A: 255,
			})
		}
	}
	return rgba, nil
}

// downsampleGray average-pools the raster into a size x size grayscale grid
// with values in [0,1].
func downsampleGray(img *image.RGBA, size int) []float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	out := make([]float64, size*size)

	for cy := 0; cy < size; cy++ {
		y0 := cy * h / size
		y1 := (cy + 1) * h / size
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for cx := 0; cx < size; cx++ {
			x0 := cx * w / size
			x1 := (cx + 1) * w / size
			if x1 <= x0 {
				x1 = x0 + 1
			}

			var sum float64
			for y := y0; y < y1 && y < h; y++ {
				for x := x0; x < x1 && x < w; x++ {
					c := img.RGBAAt(x, y)
					// ITU-R BT.601 luma
					sum += (0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)) / 255.0
				}
			}
			out[cy*size+cx] = sum / float64((y1-y0)*(x1-x0))
		}
	}
	return out
}
