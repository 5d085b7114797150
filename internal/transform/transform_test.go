package transform

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/mattjoyce/imageledger/internal/failure"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create png: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func newResizer(t *testing.T, mutate func(*Options)) *Resizer {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	r, err := NewResizer(opts)
	if err != nil {
		t.Fatalf("NewResizer: %v", err)
	}
	return r
}

func TestTransformProducesJPEGBox(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	dst := filepath.Join(dir, "out", "a.jpg")
	writePNG(t, src, 20, 30)

	if err := newResizer(t, nil).Transform(context.Background(), src, dst); err != nil {
		t.Fatalf("Transform: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 500 || cfg.Height != 700 {
		t.Fatalf("output size = %dx%d, want 500x700", cfg.Width, cfg.Height)
	}

	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("output dir has %d entries, want only the artifact", len(entries))
	}
}

func TestTransformRejectsOversizedInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.png")
	dst := filepath.Join(dir, "big.jpg")
	writePNG(t, src, 20, 30)

	r := newResizer(t, func(o *Options) { o.MaxPixels = 100 })
	err := r.Transform(context.Background(), src, dst)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if !failure.Is(err, failure.KindTransform) {
		t.Fatalf("expected TransformFailure, got kind %q", failure.KindOf(err))
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("dst must not exist after failure, stat err = %v", err)
	}
}

func TestTransformRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.jpg")
	if err := os.WriteFile(src, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := newResizer(t, nil).Transform(context.Background(), src, filepath.Join(dir, "out.jpg"))
	if !failure.Is(err, failure.KindTransform) {
		t.Fatalf("expected TransformFailure, got %v", err)
	}
	if err.Error() == "" {
		t.Fatal("error message must be descriptive")
	}
}

func TestTransformHonoursCancel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	writePNG(t, src, 4, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newResizer(t, nil).Transform(ctx, src, filepath.Join(dir, "a.jpg"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewResizerValidates(t *testing.T) {
	bad := []func(*Options){
		func(o *Options) { o.Width = 0 },
		func(o *Options) { o.Height = -1 },
		func(o *Options) { o.Quality = 0 },
		func(o *Options) { o.Quality = 101 },
		func(o *Options) { o.MaxPixels = 0 },
	}
	for i, mutate := range bad {
		opts := DefaultOptions()
		mutate(&opts)
		if _, err := NewResizer(opts); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
