package rename

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"dataset-coach/internal/cache"
)

func writePNG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeJPEG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	return path
}

func copyBytes(t *testing.T, src, dest string) {
	t.Helper()
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDeduplicatesIdenticalContent(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	a := writePNG(t, in, "a.png", color.NRGBA{10, 20, 30, 255})
	copyBytes(t, a, filepath.Join(in, "copy_of_a.png"))
	writePNG(t, in, "b.png", color.NRGBA{200, 20, 30, 255})

	r := New(cache.NewMemory(), 2)
	summary, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Two identical sources collapse to one output.
	if len(summary.Outputs) != 2 {
		t.Errorf("expected 2 unique outputs, got %d: %v", len(summary.Outputs), summary.Outputs)
	}
	if summary.Copied+summary.Reused != 3 {
		t.Errorf("expected 3 processed sources, got copied=%d reused=%d", summary.Copied, summary.Reused)
	}
	if summary.Failed != 0 {
		t.Errorf("expected no failures, got %d", summary.Failed)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 files in output dir, got %d", len(entries))
	}
}

func TestIdempotentAcrossRuns(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writePNG(t, in, "a.png", color.NRGBA{10, 20, 30, 255})
	writePNG(t, in, "b.png", color.NRGBA{99, 20, 30, 255})

	store := cache.NewMemory()
	r := New(store, 1)

	first, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if first.Copied != 2 {
		t.Errorf("first run should copy 2, got %d", first.Copied)
	}

	second, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if second.Copied != 0 || second.Reused != 2 {
		t.Errorf("second run should reuse everything, got copied=%d reused=%d", second.Copied, second.Reused)
	}
	if len(second.Outputs) != len(first.Outputs) {
		t.Errorf("output sets differ across runs: %v vs %v", first.Outputs, second.Outputs)
	}
}

func TestSkipsNonImagesAndCountsCorrupt(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writePNG(t, in, "good.png", color.NRGBA{10, 20, 30, 255})
	if err := os.WriteFile(filepath.Join(in, "notes.txt"), []byte("text"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(in, "corrupt.png"), []byte("not a png"), 0644); err != nil {
		t.Fatal(err)
	}

	r := New(nil, 1)
	summary, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Copied != 1 {
		t.Errorf("expected 1 copy, got %d", summary.Copied)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failure for the corrupt file, got %d", summary.Failed)
	}
}

func TestRecursesSubdirectories(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	sub := filepath.Join(in, "nested", "deep")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, sub, "deep.png", color.NRGBA{1, 2, 3, 255})

	r := New(nil, 1)
	summary, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Copied != 1 {
		t.Errorf("expected nested image to be processed, got copied=%d", summary.Copied)
	}
}

func TestNormalizesJpegExtension(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeJPEG(t, in, "photo.jpeg", color.NRGBA{5, 6, 7, 255})

	r := New(nil, 1)
	summary, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %v", summary.Outputs)
	}
	if filepath.Ext(summary.Outputs[0]) != ".jpg" {
		t.Errorf("expected .jpg extension, got %s", summary.Outputs[0])
	}
}

func TestExtensionFollowsContentNotName(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	// PNG bytes behind a .jpg name: the output carries the sniffed
	// format's extension, not the source's lying one.
	img := writePNG(t, in, "tmp.png", color.NRGBA{5, 6, 7, 255})
	if err := os.Rename(img, filepath.Join(in, "lying.jpg")); err != nil {
		t.Fatal(err)
	}

	r := New(nil, 1)
	summary, err := r.Run(context.Background(), in, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Outputs) != 1 {
		t.Fatalf("expected 1 output, got %v", summary.Outputs)
	}
	if filepath.Ext(summary.Outputs[0]) != ".png" {
		t.Errorf("expected .png extension from content, got %s", summary.Outputs[0])
	}
}
