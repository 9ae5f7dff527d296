package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, ww, wh int
	}{
		{3000, 2000, 1600, 1067},
		{5000, 100, 1600, 32},
		{100, 5000, 32, 1600},
		{1600, 1600, 1600, 1600},
		{800, 600, 800, 600},
		{100000, 10, 1600, 1},
	}
	for _, tc := range cases {
		w, h := FitWithin(tc.w, tc.h, 1600)
		require.Equal(t, tc.ww, w, "%dx%d", tc.w, tc.h)
		require.Equal(t, tc.wh, h, "%dx%d", tc.w, tc.h)
	}
}

func TestNormalizeBoundsLongerEdge(t *testing.T) {
	n := NewNormalizer()
	out, err := n.Normalize(pngBytes(t, 3000, 2000, color.NRGBA{R: 200, A: 255}), "image/png")
	require.NoError(t, err)
	require.Equal(t, 1600, out.Width)
	require.InDelta(t, 1600.0*2000/3000, float64(out.Height), 1)
	require.Equal(t, OutputMimeType, out.MimeType)
	require.Equal(t, int64(len(out.Payload)), out.ByteSize)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Payload))
	require.NoError(t, err)
	require.Equal(t, out.Width, cfg.Width)
	require.Equal(t, out.Height, cfg.Height)
}

func TestNormalizeWideStrip(t *testing.T) {
	out, err := NewNormalizer().Normalize(pngBytes(t, 5000, 100, color.Black), "image/png")
	require.NoError(t, err)
	require.Equal(t, 1600, out.Width)
	require.Equal(t, 32, out.Height)
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	out, err := NewNormalizer().Normalize(pngBytes(t, 640, 480, color.Black), "")
	require.NoError(t, err)
	require.Equal(t, 640, out.Width)
	require.Equal(t, 480, out.Height)
}

func TestNormalizeFlattensTransparency(t *testing.T) {
	out, err := NewNormalizer().Normalize(pngBytes(t, 20, 20, color.NRGBA{}), "image/png")
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(out.Payload))
	require.NoError(t, err)
	r, g, b, _ := img.At(10, 10).RGBA()
	require.Greater(t, r>>8, uint32(240))
	require.Greater(t, g>>8, uint32(240))
	require.Greater(t, b>>8, uint32(240))
}

func TestNormalizeRejectsNonImages(t *testing.T) {
	_, err := NewNormalizer().Normalize([]byte("just some text renamed to .jpg"), "image/jpeg")
	require.ErrorIs(t, err, ErrDecode)

	_, ok := Sniff([]byte("just some text"))
	require.False(t, ok)

	info, ok := Sniff(pngBytes(t, 7, 3, color.White))
	require.True(t, ok)
	require.Equal(t, Info{Format: "png", Width: 7, Height: 3}, info)
}

func TestNormalizeUsesOrientationResolver(t *testing.T) {
	n := NewNormalizer()
	n.Orientation = func([]byte) int { return 6 }
	out, err := n.Normalize(pngBytes(t, 40, 10, color.White), "image/png")
	require.NoError(t, err)
	require.Equal(t, 10, out.Width)
	require.Equal(t, 40, out.Height)
}

func TestOrient(t *testing.T) {
	// 3x2 source with a marker in the top-left corner.
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	marker := color.NRGBA{R: 255, A: 255}
	src.Set(0, 0, marker)

	cases := []struct {
		code   int
		w, h   int
		mx, my int
	}{
		{1, 3, 2, 0, 0},
		{2, 3, 2, 2, 0},
		{3, 3, 2, 2, 1},
		{4, 3, 2, 0, 1},
		{5, 2, 3, 0, 0},
		{6, 2, 3, 1, 0},
		{7, 2, 3, 1, 2},
		{8, 2, 3, 0, 2},
	}
	for _, tc := range cases {
		out := Orient(src, tc.code)
		require.Equal(t, tc.w, out.Bounds().Dx(), "code %d", tc.code)
		require.Equal(t, tc.h, out.Bounds().Dy(), "code %d", tc.code)
		require.Equal(t, marker, color.NRGBAModel.Convert(out.At(tc.mx, tc.my)), "code %d", tc.code)
	}
}
