package mediatypes

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a recognized image container format.
type Format string

const (
	// FormatJPEG represents a JPEG image.
	FormatJPEG Format = "jpeg"
	// FormatPNG represents a PNG image.
	FormatPNG Format = "png"
	// FormatGIF represents a GIF image.
	FormatGIF Format = "gif"
	// FormatWebP represents a WebP image.
	FormatWebP Format = "webp"
	// FormatBMP represents a BMP image.
	FormatBMP Format = "bmp"
	// FormatTIFF represents a TIFF image.
	FormatTIFF Format = "tiff"
	// FormatUnknown represents an unrecognized file.
	FormatUnknown Format = ""
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
}

// extensions maps a detected format back to its canonical file extension.
var extensions = map[Format]string{
	FormatJPEG: ".jpg",
	FormatPNG:  ".png",
	FormatGIF:  ".gif",
	FormatWebP: ".webp",
	FormatBMP:  ".bmp",
	FormatTIFF: ".tiff",
}

// IsImageFile returns true if the path has a supported image extension.
// The check is case-insensitive.
func IsImageFile(path string) bool {
	return ImageExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should include the leading dot (e.g., ".jpg").
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Extension returns the canonical file extension for a detected format,
// or an empty string for FormatUnknown.
func (f Format) Extension() string {
	return extensions[f]
}

// DetectFormat sniffs the format of an image from its leading bytes.
// At least 12 bytes are needed to distinguish WebP from other RIFF files;
// shorter inputs are matched as far as possible.
func DetectFormat(header []byte) Format {
	switch {
	case len(header) >= 3 && bytes.Equal(header[:3], []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case len(header) >= 8 && bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return FormatPNG
	case len(header) >= 6 && (bytes.Equal(header[:6], []byte("GIF87a")) || bytes.Equal(header[:6], []byte("GIF89a"))):
		return FormatGIF
	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return FormatWebP
	case len(header) >= 2 && bytes.Equal(header[:2], []byte("BM")):
		return FormatBMP
	case len(header) >= 4 && (bytes.Equal(header[:4], []byte{'I', 'I', 0x2A, 0x00}) || bytes.Equal(header[:4], []byte{'M', 'M', 0x00, 0x2A})):
		return FormatTIFF
	default:
		return FormatUnknown
	}
}

// DetectFileFormat sniffs the format of the file at path by reading its
// leading bytes. Returns FormatUnknown for unreadable or unrecognized files.
func DetectFileFormat(path string) Format {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown
	}
	return DetectFormat(header[:n])
}
