package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"pault.ag/go/cbeff/jpeg2000"
)

var ErrUnsupportedFormat = errors.New("unsupported or invalid image format")

var (
	pdfMagic = []byte("%PDF-")
	jp2Magic = []byte{0x00, 0x00, 0x00, 0x0c, 0x6a, 0x50, 0x20, 0x20, 0x0d, 0x0a, 0x87, 0x0a}
	j2kMagic = []byte{0xff, 0x4f, 0xff, 0x51}
)

// Decode decodes an uploaded document. Raster formats are decoded directly,
// PDFs are searched for an embedded scan.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedFormat)
	}

	if bytes.HasPrefix(data, pdfMagic) {
		slog.Debug("Upload looks like a PDF, extracting embedded image", "size", len(data))
		return decodePDF(data)
	}

	return decodeImage(data)
}

// decodeImage attempts to decode an image from bytes, trying multiple formats
func decodeImage(data []byte) (image.Image, error) {
	// Try JPEG first (most common)
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// registered formats: png, gif, bmp, tiff, webp
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		slog.Debug("Decoded upload", "format", format)
		return img, nil
	}

	if bytes.HasPrefix(data, jp2Magic) || bytes.HasPrefix(data, j2kMagic) {
		img, err := jpeg2000.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg2000: %v", ErrUnsupportedFormat, err)
		}
		return img, nil
	}

	return nil, ErrUnsupportedFormat
}
