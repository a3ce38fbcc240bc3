// Package imaging normalizes uploaded images into a uniform JPEG payload.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// MIMEType is the type every normalized image is encoded as.
const MIMEType = "image/jpeg"

const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	DefaultQuality   = 85

	// MaxPixels caps the decoded size of an upload. Compressed formats can
	// claim dimensions far beyond what their byte size suggests.
	MaxPixels = 50_000_000
)

var (
	ErrEmpty             = errors.New("empty image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrTooLarge          = errors.New("image dimensions too large")
)

// Formats accepted at the upload boundary
var acceptedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
}

// Config controls normalization
type Config struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func DefaultConfig() Config {
	return Config{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Quality:   DefaultQuality,
	}
}

// Result is a normalized image
type Result struct {
	Data         []byte
	MIMEType     string
	SourceFormat string
	Width        int
	Height       int
	OriginalSize int
}

// Decoder turns raw upload bytes into a normalized JPEG.
type Decoder struct {
	config Config
}

func NewDecoder(config Config) *Decoder {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultQuality
	}
	return &Decoder{config: config}
}

// Normalize decodes data, downscales it to fit the configured bounds and
// re-encodes it as JPEG. Every failure wraps ErrEmpty, ErrUnsupportedFormat,
// ErrTooLarge or the underlying decoder error.
func (d *Decoder) Normalize(data []byte) (*Result, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, http.DetectContentType(data))
	}
	if !acceptedFormats[format] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, MaxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	bounds := img.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), d.config.MaxWidth, d.config.MaxHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha channel; composite onto white so transparent PNGs don't turn black.
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: d.config.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}

	return &Result{
		Data:         buf.Bytes(),
		MIMEType:     MIMEType,
		SourceFormat: format,
		Width:        w,
		Height:       h,
		OriginalSize: len(data),
	}, nil
}

// fitWithin scales (w, h) down to fit (maxW, maxH), preserving aspect ratio.
// A zero bound means no limit on that axis.
func fitWithin(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		if s := float64(maxH) / float64(h); s < scale {
			scale = s
		}
	}
	if scale == 1.0 {
		return w, h
	}
	nw, nh := int(float64(w)*scale), int(float64(h)*scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
