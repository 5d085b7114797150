// Package transform produces derived artifacts: every recognized source image
// is resized to a fixed box and re-encoded as JPEG.
package transform

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/mattjoyce/imageledger/internal/failure"
)

// ErrTooLarge rejects inputs whose decoded pixel count exceeds Options.MaxPixels.
var ErrTooLarge = errors.New("image is too big")

// Transformer writes the derived artifact for src at dst.
type Transformer interface {
	Transform(ctx context.Context, src, dst string) error
}

// Options control the output box and the decompression guard.
type Options struct {
	Width     int
	Height    int
	Quality   int
	MaxPixels int64
}

// DefaultOptions returns the 500x700, quality 85 output used for every artifact.
func DefaultOptions() Options {
	return Options{
		Width:     500,
		Height:    700,
		Quality:   85,
		MaxPixels: 89_478_485,
	}
}

// Resizer is the JPEG Transformer.
type Resizer struct {
	opts Options
}

var _ Transformer = (*Resizer)(nil)

// NewResizer validates opts and returns a Resizer.
func NewResizer(opts Options) (*Resizer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("transform size must be positive, got %dx%d", opts.Width, opts.Height)
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return nil, fmt.Errorf("transform quality must be within 1..100, got %d", opts.Quality)
	}
	if opts.MaxPixels <= 0 {
		return nil, fmt.Errorf("transform max_pixels must be positive, got %d", opts.MaxPixels)
	}
	return &Resizer{opts: opts}, nil
}

// Transform decodes src, scales it into the configured box and writes a JPEG
// to dst atomically. All failures are TransformFailure; dst is untouched on
// failure.
func (r *Resizer) Transform(ctx context.Context, src, dst string) error {
	const op = "transform"
	if err := ctx.Err(); err != nil {
		return err
	}

	img, err := r.decode(src)
	if err != nil {
		return failure.New(failure.KindTransform, op, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.opts.Height))
	// JPEG has no alpha; flatten transparent sources onto white.
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(out, out.Bounds(), img, img.Bounds(), draw.Over, nil)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeJPEG(dst, out, r.opts.Quality); err != nil {
		return failure.New(failure.KindTransform, op, err)
	}
	return nil
}

func (r *Resizer) decode(src string) (image.Image, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > r.opts.MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, r.opts.MaxPixels)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind source: %w", err)
	}
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}

func writeJPEG(dst string, img image.Image, quality int) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".resize-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
