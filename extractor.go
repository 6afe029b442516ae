package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"go-passport-reader/images"
	"go-passport-reader/mrz"
	"go-passport-reader/ocr"
)

// ErrExtractionFailed marks every failure caused by the uploaded document
// itself, as opposed to a failure of the service.
var ErrExtractionFailed = errors.New("unable to extract mrz")

// abstract interfaces for easier testing

type MRZLocator interface {
	Locate(ctx context.Context, page image.Image) (image.Image, error)
}

type LineRecognizer interface {
	RecognizeLines(ctx context.Context, imagePath string) ([]string, error)
}

type IdentityExtractor interface {
	Extract(ctx context.Context, uploadPath string) (mrz.Identity, error)
}

// MRZExtractor runs the pipeline: decode -> locate -> normalise the strip ->
// recognise -> parse.
type MRZExtractor struct {
	store      *UploadStore
	locator    MRZLocator
	recognizer LineRecognizer
	roiWidth   int
	roiHeight  int
}

func NewMRZExtractor(store *UploadStore, locator MRZLocator, recognizer LineRecognizer) *MRZExtractor {
	return &MRZExtractor{
		store:      store,
		locator:    locator,
		recognizer: recognizer,
		roiWidth:   images.ROIWidth,
		roiHeight:  images.ROIHeight,
	}
}

func (e *MRZExtractor) Extract(ctx context.Context, uploadPath string) (mrz.Identity, error) {
	data, err := os.ReadFile(uploadPath)
	if err != nil {
		return mrz.Identity{}, fmt.Errorf("failed to read upload: %w", err)
	}

	page, err := images.Decode(data)
	if err != nil {
		return mrz.Identity{}, extractionFailure("decode upload", err)
	}
	slog.Debug("Upload decoded", "width", page.Bounds().Dx(), "height", page.Bounds().Dy())

	roi, err := e.locator.Locate(ctx, page)
	if err != nil {
		return mrz.Identity{}, extractionFailure("locate mrz", err)
	}

	strip, err := e.store.Create(KindROI, ".png")
	if err != nil {
		return mrz.Identity{}, err
	}
	defer strip.Remove()

	if err := images.WritePNG(strip.Path, images.NormalizeROI(roi, e.roiWidth, e.roiHeight)); err != nil {
		return mrz.Identity{}, err
	}

	lines, err := e.recognizer.RecognizeLines(ctx, strip.Path)
	if err != nil {
		return mrz.Identity{}, fmt.Errorf("failed to recognize mrz strip: %w", err)
	}
	slog.Debug("MRZ strip recognized", "line_count", len(lines))

	record, err := mrz.ParseLines(lines)
	if err != nil {
		return mrz.Identity{}, extractionFailure("parse mrz", err)
	}

	logVerification(record)
	return record.Identity, nil
}

// extractionFailure wraps the client-side failure classes into
// ErrExtractionFailed. Anything else is returned as a server error.
func extractionFailure(stage string, err error) error {
	switch {
	case errors.Is(err, images.ErrUnsupportedFormat),
		errors.Is(err, ocr.ErrMRZNotFound),
		errors.Is(err, mrz.ErrInsufficientLines),
		errors.Is(err, mrz.ErrMalformedDate):
		return fmt.Errorf("%w: %s: %w", ErrExtractionFailed, stage, err)
	default:
		return fmt.Errorf("failed to %s: %w", stage, err)
	}
}

// logVerification reports check digit results. The response does not
// depend on them.
func logVerification(record mrz.Record) {
	report := mrz.VerifyCheckDigits(record.Line2)
	if !report.Valid() {
		slog.Warn("MRZ check digits do not match",
			"document_number", report.DocumentNumber,
			"date_of_birth", report.DateOfBirth,
			"date_of_expiry", report.DateOfExpiry,
			"composite", report.Composite)
		return
	}

	details, err := mrz.Decode(record.Line1, record.Line2)
	if err != nil {
		slog.Debug("Full MRZ decode failed", "error", err)
		return
	}
	slog.Debug("MRZ verified",
		"document_code", details.DocumentCode,
		"issuing_state", details.IssuingState,
		"nationality", details.Nationality,
		"sex", details.Sex,
		"surname_consistent", details.Primary == record.Surname)
}
