package extraction

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

// testImagePNG renders a deterministic gradient-plus-stripes image so the
// signal features have non-trivial color and edge content.
func testImagePNG(t *testing.T, width, height int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x*255/width + int(seed)) % 256)
			g := uint8((y * 255) / height)
			b := uint8(0)
			if (x/8)%2 == 0 {
				b = 200
			}
			img.SetRGBA(x, y, color.RGBA{R: r, G: g, B: b, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
