// Package imaging prepares invoice photos for storage: decode, bound to a
// maximum edge and re-encode as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

const (
	DefaultMaxDimension = 1600
	DefaultQuality      = 80
	OutputMimeType      = "image/jpeg"
)

var ErrDecode = errors.New("unable to decode image")

// Normalized is the re-encoded payload and its dimensions.
type Normalized struct {
	Payload  []byte
	Width    int
	Height   int
	ByteSize int64
	MimeType string
}

// OrientationResolver returns the EXIF orientation code (1..8) of data.
type OrientationResolver func(data []byte) int

// IdentityOrientation always resolves to 1. Photos are stored as decoded.
func IdentityOrientation([]byte) int { return 1 }

type Normalizer struct {
	MaxDimension int
	Quality      int
	Orientation  OrientationResolver
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		MaxDimension: DefaultMaxDimension,
		Quality:      DefaultQuality,
		Orientation:  IdentityOrientation,
	}
}

// Normalize decodes data, applies orientation, scales so both sides fit
// MaxDimension and encodes JPEG. Transparent areas become white.
func (n *Normalizer) Normalize(data []byte, mimeHint string) (Normalized, error) {
	src, err := decode(data)
	if err != nil {
		return Normalized{}, fmt.Errorf("normalize %s: %w", mimeHint, err)
	}
	code := 1
	if n.Orientation != nil {
		code = n.Orientation(data)
	}
	src = Orient(src, code)

	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), n.MaxDimension)
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	stddraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, stddraw.Src)
	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), src, b, xdraw.Over, nil)

	quality := n.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return Normalized{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Normalized{
		Payload:  buf.Bytes(),
		Width:    w,
		Height:   h,
		ByteSize: int64(buf.Len()),
		MimeType: OutputMimeType,
	}, nil
}

// FitWithin returns w×h scaled uniformly so neither side exceeds limit,
// rounding to the nearest pixel. Sizes already within the limit are kept.
func FitWithin(w, h, limit int) (int, int) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h
	}
	scale := math.Min(float64(limit)/float64(w), float64(limit)/float64(h))
	sw := int(math.Round(float64(w) * scale))
	sh := int(math.Round(float64(h) * scale))
	return max(sw, 1), max(sh, 1)
}

// Info describes a decodable image without decoding its pixels.
type Info struct {
	Format string
	Width  int
	Height int
}

// Sniff reports whether data is a raster image this package can decode.
func Sniff(data []byte) (Info, bool) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, true
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return Info{Format: "webp", Width: cfg.Width, Height: cfg.Height}, true
	}
	return Info{}, false
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	if decoded, webpErr := webp.Decode(bytes.NewReader(data)); webpErr == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, err)
}
