package mediatypes

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"scan.tif", true},
		{"anim.webp", true},
		{"dir/pic.PNG", true},
		{"notes.txt", false},
		{"archive.zip", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.path); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, FormatPNG},
		{"gif87a", []byte("GIF87a"), FormatGIF},
		{"gif89a", []byte("GIF89a"), FormatGIF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), FormatWebP},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVE"), FormatUnknown},
		{"bmp", []byte("BM\x00\x00"), FormatBMP},
		{"tiff little endian", []byte{'I', 'I', 0x2A, 0x00}, FormatTIFF},
		{"tiff big endian", []byte{'M', 'M', 0x00, 0x2A}, FormatTIFF},
		{"empty", nil, FormatUnknown},
		{"text", []byte("hello world!"), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.header); got != tt.want {
				t.Errorf("DetectFormat(%v) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestDetectFileFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.bin")
	if err := os.WriteFile(path, []byte{0xFF, 0xD8, 0xFF, 0xE1, 0x00, 0x00}, 0644); err != nil {
		t.Fatal(err)
	}

	if got := DetectFileFormat(path); got != FormatJPEG {
		t.Errorf("DetectFileFormat = %q, want %q", got, FormatJPEG)
	}
	if got := DetectFileFormat(filepath.Join(dir, "missing")); got != FormatUnknown {
		t.Errorf("DetectFileFormat for missing file = %q, want unknown", got)
	}
}

func TestFormatExtension(t *testing.T) {
	if got := FormatJPEG.Extension(); got != ".jpg" {
		t.Errorf("FormatJPEG.Extension() = %q, want .jpg", got)
	}
	if got := FormatUnknown.Extension(); got != "" {
		t.Errorf("FormatUnknown.Extension() = %q, want empty", got)
	}
}

func TestGetMimeType(t *testing.T) {
	if got := GetMimeType(".PNG"); got != "image/png" {
		t.Errorf("GetMimeType(.PNG) = %q", got)
	}
	if got := GetMimeType(".xyz"); got != "application/octet-stream" {
		t.Errorf("GetMimeType(.xyz) = %q", got)
	}
}
