// Package tensor holds decoded images in the planar float layout consumed by
// the local classifier. Buffers are pooled; every Image must be released.
package tensor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// RGB is the channel depth used for classification (color without alpha).
	RGB = 3

	// MaxPixels bounds the declared source dimensions accepted by Decode.
	// Decoders allocate the full frame up front, so the header is checked first.
	MaxPixels = 40_000_000
)

var (
	ErrEmpty    = errors.New("tensor: empty image data")
	ErrChannels = errors.New("tensor: unsupported channel count")
	ErrSize     = errors.New("tensor: invalid target size")
	ErrTooLarge = errors.New("tensor: image dimensions too large")
)

// Image is a square image stored channel-major (CHW) with values in [0,1].
type Image struct {
	Channels int
	Size     int
	Data     []float64

	buf      *[]float64
	released atomic.Bool
}

var bufPool = sync.Pool{
	New: func() any { return new([]float64) },
}

func getBuf(n int) *[]float64 {
	p := bufPool.Get().(*[]float64)
	if cap(*p) < n {
		*p = make([]float64, n)
	}
	*p = (*p)[:n]
	return p
}

// Decode decodes an encoded image (JPEG, PNG, GIF, WebP), scales it to
// size x size and converts it to RGB planes. channels must be RGB.
func Decode(data []byte, channels, size int) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if channels != RGB {
		return nil, fmt.Errorf("%w: %d", ErrChannels, channels)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrSize, size)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tensor: decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("tensor: decode: empty frame %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tensor: decode: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	plane := size * size
	buf := getBuf(channels * plane)
	out := *buf
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := dst.PixOffset(x, y)
			r := float64(dst.Pix[off]) / 255
			g := float64(dst.Pix[off+1]) / 255
			b := float64(dst.Pix[off+2]) / 255
			i := y*size + x
			out[i] = r
			out[plane+i] = g
			out[2*plane+i] = b
		}
	}

	return &Image{
		Channels: channels,
		Size:     size,
		Data:     out,
		buf:      buf,
	}, nil
}

// Release returns the image buffer to the pool. Only the first call has an
// effect; it reports whether this call performed the release.
func (img *Image) Release() bool {
	if img == nil || !img.released.CompareAndSwap(false, true) {
		return false
	}
	img.Data = nil
	if img.buf != nil {
		bufPool.Put(img.buf)
		img.buf = nil
	}
	return true
}

// Released reports whether Release has been called.
func (img *Image) Released() bool {
	return img != nil && img.released.Load()
}
