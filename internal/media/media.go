package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"

	"dataset-coach/internal/logging"
	"dataset-coach/internal/mediatypes"

	"github.com/disintegration/imaging"

	// Register decoders for formats imaging does not handle natively.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
)

// minUploadWidth is the minimum width sent to the generation service.
// Narrower images are upscaled before upload so the service has enough
// pixels to work with.
const minUploadWidth = 1024

// colorPixelRatio is the fraction of sampled pixels that must diverge
// across channels before an image counts as colored.
const colorPixelRatio = 0.05

// maxSampleDim caps the sampling grid per axis for monochrome detection.
const maxSampleDim = 256

// Preprocess loads the image at path and normalizes it for upload:
// EXIF orientation applied, alpha flattened onto a white background,
// and upscaled to the minimum width when narrower.
func Preprocess(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}

	img = flattenAlpha(img)

	if w := img.Bounds().Dx(); w < minUploadWidth {
		logging.Debug("Upscaling %s from width %d to %d before upload", path, w, minUploadWidth)
		img = imaging.Resize(img, minUploadWidth, 0, imaging.Lanczos)
	}

	return img, nil
}

// flattenAlpha composites img over an opaque white background. Images that
// are already opaque are drawn through unchanged; the extra copy keeps the
// result in a predictable NRGBA layout either way.
func flattenAlpha(img image.Image) image.Image {
	bounds := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)
	return flat
}

// IsMonochrome reports whether img is effectively grayscale. Pixels are
// sampled on a grid; a pixel counts as colored when its channels diverge by
// more than one 8-bit step, which tolerates JPEG chroma noise on scanned
// line art. The image is monochrome when fewer than 5% of sampled pixels
// are colored.
func IsMonochrome(img image.Image) bool {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return true
	}

	stepX := w / maxSampleDim
	if stepX < 1 {
		stepX = 1
	}
	stepY := h / maxSampleDim
	if stepY < 1 {
		stepY = 1
	}

	var sampled, colored int
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			// RGBA returns 16-bit channels; compare at 8-bit precision.
			r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)
			if maxDivergence(r8, g8, b8) > 1 {
				colored++
			}
			sampled++
		}
	}

	return float64(colored) < colorPixelRatio*float64(sampled)
}

func maxDivergence(r, g, b int) int {
	d := abs(r - g)
	if v := abs(r - b); v > d {
		d = v
	}
	if v := abs(g - b); v > d {
		d = v
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// EncodePNGBase64 encodes img as PNG and returns the standard base64
// encoding of the bytes, the form the generation service expects.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBase64ToFile decodes a base64 image payload (with or without a
// data-URI prefix) and writes it to path. When overwrite is false and the
// file already exists, an error is returned and the file is untouched.
func DecodeBase64ToFile(data, path string, overwrite bool) error {
	if idx := strings.Index(data, ","); idx >= 0 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("failed to decode base64 image data: %w", err)
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("output file %s already exists", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to check output file %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// VerifyImage checks that the file at path is a real image: the leading
// bytes must carry a recognized magic number and the header must decode.
// The sniffed format is returned so callers can trust the content over the
// file extension. Only the header is parsed, so this is cheap enough to run
// on every candidate during directory scans.
func VerifyImage(path string) (mediatypes.Format, error) {
	format := mediatypes.DetectFileFormat(path)
	if format == mediatypes.FormatUnknown {
		return format, fmt.Errorf("%s does not start with a recognized image signature", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return mediatypes.FormatUnknown, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return mediatypes.FormatUnknown, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return format, nil
}
