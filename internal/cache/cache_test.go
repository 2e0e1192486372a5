package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg bytes"))
	out := writeFile(t, dir, "out.png", []byte("png bytes"))
	params := map[string]interface{}{"scale": 2}

	s := New(filepath.Join(dir, "cache.json"))

	if res := s.IsCached(src, out, params); res.Hit {
		t.Fatal("expected miss before AddToCache")
	}

	s.AddToCache(src, out, params)

	res := s.IsCached(src, out, params)
	if !res.Hit {
		t.Fatal("expected hit after AddToCache")
	}
	if filepath.Base(res.Path) != "out.png" {
		t.Errorf("expected recorded output out.png, got %s", res.Path)
	}

	// Lookup without a caller-supplied output still returns the recorded path.
	res = s.IsCached(src, "", params)
	if !res.Hit || filepath.Base(res.Path) != "out.png" {
		t.Errorf("expected hit with recorded path, got %+v", res)
	}
}

func TestMissAfterSourceModified(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("original"))
	out := writeFile(t, dir, "out.png", []byte("png"))

	s := NewMemory()
	s.AddToCache(src, out, nil)
	if !s.IsCached(src, out, nil).Hit {
		t.Fatal("expected hit before modification")
	}

	writeFile(t, dir, "img.jpg", []byte("rewritten"))
	if s.IsCached(src, out, nil).Hit {
		t.Error("expected miss after source content changed")
	}
}

func TestMissAfterOutputDeleted(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	out := writeFile(t, dir, "out.png", []byte("png"))

	s := NewMemory()
	s.AddToCache(src, out, nil)

	if err := os.Remove(out); err != nil {
		t.Fatalf("failed to remove output: %v", err)
	}

	if s.IsCached(src, out, nil).Hit {
		t.Error("expected miss with caller-supplied output deleted")
	}
	if s.IsCached(src, "", nil).Hit {
		t.Error("expected miss with recorded output deleted")
	}
}

func TestMissOnOutputMismatch(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	out := writeFile(t, dir, "out.png", []byte("png"))
	other := writeFile(t, dir, "other.png", []byte("png2"))

	s := NewMemory()
	s.AddToCache(src, out, nil)

	if s.IsCached(src, other, nil).Hit {
		t.Error("expected miss when supplied output differs from recorded output")
	}
	if !s.IsCached(src, out, nil).Hit {
		t.Error("expected hit for the recorded output")
	}
}

func TestOutputBackfill(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	out := writeFile(t, dir, "out.png", []byte("png"))

	s := NewMemory()
	// Entry recorded without an output path.
	s.AddToCache(src, "", nil)

	res := s.IsCached(src, out, nil)
	if !res.Hit {
		t.Fatal("expected hit with matching fingerprint and existing output")
	}

	// The supplied output is now recorded on the entry.
	res = s.IsCached(src, "", nil)
	if !res.Hit || filepath.Base(res.Path) != "out.png" {
		t.Errorf("expected backfilled output path, got %+v", res)
	}
}

func TestParamOrderIndependence(t *testing.T) {
	a := map[string]interface{}{"scale": 2, "upscaler": "x", "extra": nil}
	b := map[string]interface{}{"upscaler": "x", "scale": 2}

	if DeriveKey("/some/img.jpg", a) != DeriveKey("/some/img.jpg", b) {
		t.Error("keys differ for equal params (nil values must be dropped, order ignored)")
	}

	c := map[string]interface{}{"scale": 3, "upscaler": "x"}
	if DeriveKey("/some/img.jpg", a) == DeriveKey("/some/img.jpg", c) {
		t.Error("keys equal for different params")
	}
	if DeriveKey("/some/img.jpg", a) == DeriveKey("/other/img.jpg", a) {
		t.Error("keys equal for different paths")
	}
}

func TestNilOnlyParamsEqualNoParams(t *testing.T) {
	onlyNil := map[string]interface{}{"a": nil, "b": nil}
	if DeriveKey("/img.jpg", onlyNil) != DeriveKey("/img.jpg", nil) {
		t.Error("params with only nil values must derive the same key as no params")
	}
}

func TestPersistenceAcrossStores(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))
	out := writeFile(t, dir, "out.png", []byte("png"))
	cachePath := filepath.Join(dir, "sub", "cache.json")

	s1 := New(cachePath)
	s1.AddToCache(src, out, map[string]interface{}{"stage": "enhance"})

	s2 := New(cachePath)
	if !s2.IsCached(src, out, map[string]interface{}{"stage": "enhance"}).Hit {
		t.Error("expected hit from reloaded store")
	}
}

func TestVersionMismatchStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	cachePath := filepath.Join(dir, "cache.json")
	old, err := json.Marshal(map[string]interface{}{
		"version": 99,
		"entries": map[string]interface{}{"k": map[string]interface{}{"hash": "h"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "cache.json", old)

	s := New(cachePath)
	if s.Len() != 0 {
		t.Errorf("expected empty store on version mismatch, got %d entries", s.Len())
	}

	// The old file stays on disk until the next save overwrites it.
	if _, err := os.Stat(cachePath); err != nil {
		t.Errorf("expected old cache file untouched: %v", err)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cache.json", []byte("{not json"))

	s := New(filepath.Join(dir, "cache.json"))
	if s.Len() != 0 {
		t.Errorf("expected empty store on corrupt file, got %d entries", s.Len())
	}
}

func TestMemoryOnlyStore(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))

	s := NewMemory()
	s.AddToCache(src, "", nil)
	s.Save() // no-op

	if !s.IsCached(src, "", nil).Hit {
		t.Error("expected hit in memory-only store")
	}
}

func TestRemoveAndClear(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "img.jpg", []byte("jpeg"))

	s := NewMemory()
	s.AddToCache(src, "", nil)
	s.AddToCache(src, "", map[string]interface{}{"stage": "rename"})
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}

	s.RemoveFromCache(src, nil)
	if s.Len() != 1 {
		t.Errorf("expected 1 entry after remove, got %d", s.Len())
	}
	if s.IsCached(src, "", nil).Hit {
		t.Error("expected miss after removal")
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("expected empty store after Clear, got %d entries", s.Len())
	}
}

func TestCleanupRemovesOldEntriesAndOutputs(t *testing.T) {
	dir := t.TempDir()
	oldSrc := writeFile(t, dir, "old.jpg", []byte("old"))
	newSrc := writeFile(t, dir, "new.jpg", []byte("new"))
	oldOut := writeFile(t, dir, "old_out.png", []byte("png"))

	s := NewMemory()
	s.AddToCache(oldSrc, oldOut, nil)
	s.AddToCache(newSrc, "", nil)

	// Age the first entry past the cutoff.
	oldKey := DeriveKey(oldSrc, nil)
	s.mu.Lock()
	e := s.entries[oldKey]
	e.Timestamp = time.Now().AddDate(0, 0, -40)
	s.entries[oldKey] = e
	s.mu.Unlock()

	removed := s.Cleanup(30)
	if removed != 1 {
		t.Errorf("expected 1 entry removed, got %d", removed)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 entry remaining, got %d", s.Len())
	}
	if _, err := os.Stat(oldOut); !os.IsNotExist(err) {
		t.Error("expected expired output file deleted")
	}
	if !s.IsCached(newSrc, "", nil).Hit {
		t.Error("expected recent entry to survive cleanup")
	}
}

func TestMissForMissingSource(t *testing.T) {
	s := NewMemory()
	if s.IsCached(filepath.Join(t.TempDir(), "nope.jpg"), "", nil).Hit {
		t.Error("expected miss for nonexistent source")
	}
}
