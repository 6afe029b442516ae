// Package ocr wraps Tesseract for the two recognition passes of the reader:
// line detection on the full page and text recognition on the MRZ strip.
package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// MRZAllowlist restricts recognition to characters that can appear in a
// machine readable zone. Lower case and space are kept because OCR output
// is upper-cased and padded afterwards.
const MRZAllowlist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789< "

type Config struct {
	Languages      []string `json:"languages,omitempty"`
	TessdataPrefix string   `json:"tessdata_prefix,omitempty"`
	Allowlist      string   `json:"allowlist,omitempty"`
}

// Line is one text line found on a page.
type Line struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// TesseractEngine is safe for concurrent use: every call gets its own client.
type TesseractEngine struct {
	languages      []string
	tessdataPrefix string
	allowlist      string
	clientFactory  func() *gosseract.Client
}

func NewTesseractEngine(config Config) *TesseractEngine {
	languages := config.Languages
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	allowlist := config.Allowlist
	if allowlist == "" {
		allowlist = MRZAllowlist
	}
	return &TesseractEngine{
		languages:      append([]string(nil), languages...),
		tessdataPrefix: config.TessdataPrefix,
		allowlist:      allowlist,
		clientFactory:  gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Version reports the linked Tesseract version.
func (e *TesseractEngine) Version() (string, error) {
	c, err := e.newClient(gosseract.PSM_AUTO)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.Version(), nil
}

// RecognizeLines reads the MRZ strip stored at imagePath and returns the
// non-empty text lines top to bottom.
func (e *TesseractEngine) RecognizeLines(ctx context.Context, imagePath string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := e.newClient(gosseract.PSM_SINGLE_BLOCK)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.SetImage(imagePath); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	lines := SplitLines(text)
	slog.Debug("Recognized MRZ strip", "line_count", len(lines))
	return lines, nil
}

// DetectLines finds text lines on a whole page encoded as PNG.
func (e *TesseractEngine) DetectLines(ctx context.Context, page []byte) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := e.newClient(gosseract.PSM_AUTO)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.SetImageFromBytes(page); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("detect text lines: %w", err)
	}

	lines := make([]Line, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, Line{Text: text, Box: b.Box, Confidence: b.Confidence / 100.0})
	}
	slog.Debug("Detected page text lines", "line_count", len(lines))
	return lines, nil
}

func (e *TesseractEngine) newClient(mode gosseract.PageSegMode) (*gosseract.Client, error) {
	c := e.clientFactory()
	if e.tessdataPrefix != "" {
		if err := c.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetWhitelist(e.allowlist); err != nil {
		c.Close()
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	if err := c.SetPageSegMode(mode); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page segmentation mode: %w", err)
	}
	return c, nil
}

// SplitLines splits recognised text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
