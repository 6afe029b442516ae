package images

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"log/slog"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// decodePDF returns the largest decodable image of the first page that has
// one. Scanned passports are a single full page image, so the first page
// with images is the scan.
func decodePDF(data []byte) (img image.Image, err error) {
	// pdfcpu panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%w: panic while extracting PDF images: %v", ErrUnsupportedFormat, r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract PDF images: %v", ErrUnsupportedFormat, err)
	}

	for pageIndex, pageImages := range pages {
		var best image.Image
		bestArea := 0
		for objNr, raw := range pageImages {
			content, err := io.ReadAll(raw)
			if err != nil {
				slog.Warn("Failed to read embedded PDF image", "page", pageIndex+1, "object", objNr, "error", err)
				continue
			}
			decoded, err := decodeImage(content)
			if err != nil {
				slog.Debug("Skipping undecodable PDF image", "page", pageIndex+1, "object", objNr, "file_type", raw.FileType)
				continue
			}
			if area := decoded.Bounds().Dx() * decoded.Bounds().Dy(); area > bestArea {
				best, bestArea = decoded, area
			}
		}
		if best != nil {
			slog.Debug("Using embedded PDF image", "page", pageIndex+1, "width", best.Bounds().Dx(), "height", best.Bounds().Dy())
			return best, nil
		}
	}

	return nil, fmt.Errorf("%w: no decodable image in PDF", ErrUnsupportedFormat)
}
