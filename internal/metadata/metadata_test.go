package metadata

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dataset-coach/internal/cache"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 100, 255})
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

func TestExtract(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "a.png", 20, 10)

	info, err := Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if info.Width != 20 || info.Height != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10", info.Width, info.Height)
	}
	if info.Format != "png" {
		t.Errorf("format = %q, want png", info.Format)
	}
	if info.MimeType != "image/png" {
		t.Errorf("mime = %q", info.MimeType)
	}
	if len(info.ContentHash) != 64 {
		t.Errorf("content hash length = %d, want 64", len(info.ContentHash))
	}
	if info.FileSize <= 0 {
		t.Errorf("file size = %d", info.FileSize)
	}
}

func TestRunWritesOneDocumentPerHash(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	a := writePNG(t, dir, "a.png", 8, 8)

	// Identical content under a second name.
	data, err := os.ReadFile(a)
	if err != nil {
		t.Fatal(err)
	}
	b := filepath.Join(dir, "b.png")
	if err := os.WriteFile(b, data, 0644); err != nil {
		t.Fatal(err)
	}
	c := writePNG(t, dir, "c.png", 9, 9)

	e := New(cache.NewMemory())
	summary, err := e.Run([]string{a, b, c}, out)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Extracted != 2 {
		t.Errorf("expected 2 extracted (identical content deduped), got %d", summary.Extracted)
	}
	if summary.Failed != 0 {
		t.Errorf("expected no failures, got %d", summary.Failed)
	}

	entries, err := os.ReadDir(filepath.Join(out, "metadata"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 metadata documents, got %d", len(entries))
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), "_metadata.json") {
			t.Errorf("unexpected document name %s", entry.Name())
		}
	}
}

func TestRunReusesExistingDocuments(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	a := writePNG(t, dir, "a.png", 8, 8)

	e := New(cache.NewMemory())
	if _, err := e.Run([]string{a}, out); err != nil {
		t.Fatal(err)
	}

	second, err := e.Run([]string{a}, out)
	if err != nil {
		t.Fatal(err)
	}
	if second.Extracted != 0 || second.Reused != 1 {
		t.Errorf("expected full reuse on second run, got extracted=%d reused=%d",
			second.Extracted, second.Reused)
	}
}

func TestRunCountsFailures(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	e := New(nil)
	summary, err := e.Run([]string{bad}, out)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", summary.Failed)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	a := writePNG(t, dir, "a.png", 8, 8)

	e := New(nil)
	summary, err := e.Run([]string{a}, out)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Files) != 1 {
		t.Fatalf("expected 1 document, got %v", summary.Files)
	}

	info, err := Load(summary.Files[0])
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if info.SourcePath != a {
		t.Errorf("source path = %q, want %q", info.SourcePath, a)
	}
}
