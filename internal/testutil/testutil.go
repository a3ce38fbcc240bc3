// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sync"

	"github.com/lehigh-university-libraries/imagechat/internal/providers"
)

func fill(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// PNG returns a solid red PNG of the given size
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, fill(w, h, color.RGBA{R: 255, A: 255}))
	return buf.Bytes()
}

// TransparentPNG returns a fully transparent PNG
func TransparentPNG(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, fill(w, h, color.RGBA{}))
	return buf.Bytes()
}

// JPEG returns a solid blue JPEG
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, fill(w, h, color.RGBA{B: 255, A: 255}), nil)
	return buf.Bytes()
}

// GIF returns a single-frame GIF
func GIF(w, h int) []byte {
	var buf bytes.Buffer
	_ = gif.Encode(&buf, fill(w, h, color.RGBA{G: 255, A: 255}), nil)
	return buf.Bytes()
}

// HeaderOnlyPNG returns a small valid PNG whose IHDR claims w x h pixels.
// Decoding the header is cheap while a full decode would allocate the
// claimed size.
func HeaderOnlyPNG(w, h uint32) []byte {
	data := PNG(1, 1)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

// Call records one Generate invocation
type Call struct {
	Prompt  string
	History []providers.Turn
	Image   *providers.Image
}

// FakeModel is a scripted model client
type FakeModel struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls []Call
}

func (f *FakeModel) Generate(ctx context.Context, prompt string, history []providers.Turn, img *providers.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Prompt: prompt, History: history, Image: img})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}

// SetErr changes the scripted error; safe while requests are in flight
func (f *FakeModel) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

func (f *FakeModel) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}
