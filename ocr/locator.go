package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"strings"

	"go-passport-reader/images"
)

var ErrMRZNotFound = errors.New("no machine readable zone found")

// LineDetector finds text lines on a PNG encoded page.
type LineDetector interface {
	DetectLines(ctx context.Context, page []byte) ([]Line, error)
}

const (
	defaultMinLineLength = 30
	defaultMinFillers    = 3
	// pages are scaled down to this box before detection
	defaultMaxPageSize = 2000
	// MRZ blocks have 2 (TD3, TD2) or 3 (TD1) lines
	maxMRZLines = 3
)

// Locator finds the machine readable zone on a page. It looks for the
// bottom-most block of adjacent lines that look like MRZ text and crops
// that block with a margin of one line height.
type Locator struct {
	detector      LineDetector
	minLineLength int
	minFillers    int
	maxPageSize   int
}

func NewLocator(detector LineDetector) *Locator {
	return &Locator{
		detector:      detector,
		minLineLength: defaultMinLineLength,
		minFillers:    defaultMinFillers,
		maxPageSize:   defaultMaxPageSize,
	}
}

// Locate returns the cropped MRZ region of page, or ErrMRZNotFound.
func (l *Locator) Locate(ctx context.Context, page image.Image) (image.Image, error) {
	page = images.FitWithin(page, l.maxPageSize, l.maxPageSize)

	encoded, err := images.EncodePNG(page)
	if err != nil {
		return nil, err
	}

	lines, err := l.detector.DetectLines(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to detect lines: %w", err)
	}

	block := l.mrzBlock(lines)
	if len(block) == 0 {
		slog.Debug("No MRZ shaped lines on page", "line_count", len(lines))
		return nil, ErrMRZNotFound
	}

	region := block[0].Box
	lineHeight := 0
	for _, line := range block {
		region = region.Union(line.Box)
		lineHeight = max(lineHeight, line.Box.Dy())
	}
	region = region.Inset(-lineHeight)
	slog.Debug("Located MRZ", "line_count", len(block), "region", region.String())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roi, err := images.Crop(page, region.Add(page.Bounds().Min))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMRZNotFound, err)
	}
	return roi, nil
}

// mrzBlock returns the bottom-most run of vertically adjacent candidate
// lines, at most maxMRZLines long.
func (l *Locator) mrzBlock(lines []Line) []Line {
	var candidates []Line
	for _, line := range lines {
		if l.isCandidate(line.Text) {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Box.Min.Y < candidates[j].Box.Min.Y
	})

	// walk upwards from the lowest candidate while lines stay adjacent
	end := len(candidates) - 1
	start := end
	for start > 0 && end-start+1 < maxMRZLines && adjacent(candidates[start-1], candidates[start]) {
		start--
	}
	return candidates[start : end+1]
}

func (l *Locator) isCandidate(text string) bool {
	compact := strings.ReplaceAll(text, " ", "")
	return len(compact) >= l.minLineLength && strings.Count(compact, "<") >= l.minFillers
}

// adjacent reports whether below starts within one line height of above.
func adjacent(above, below Line) bool {
	gap := below.Box.Min.Y - above.Box.Max.Y
	return gap <= max(above.Box.Dy(), below.Box.Dy())
}
