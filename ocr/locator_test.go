package ocr

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	mrzLine1 = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<"
	mrzLine2 = "L898902C36UTO7408122F1204159ZE184226B<<<<<10"
)

type fakeDetector struct {
	lines []Line
	err   error
	calls int
}

func (f *fakeDetector) DetectLines(ctx context.Context, page []byte) ([]Line, error) {
	f.calls++
	if len(page) == 0 {
		return nil, errors.New("empty page")
	}
	return f.lines, f.err
}

func page(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetGray(0, 0, color.Gray{Y: 0})
	return img
}

func line(text string, x0, y0, x1, y1 int) Line {
	return Line{Text: text, Box: image.Rect(x0, y0, x1, y1), Confidence: 0.9}
}

func TestLocateFindsBottomBlock(t *testing.T) {
	detector := &fakeDetector{lines: []Line{
		line("PASSPORT", 100, 20, 300, 60),
		line("ERIKSSON", 300, 200, 500, 230),
		line(mrzLine1, 40, 600, 960, 630),
		line(mrzLine2, 40, 640, 960, 670),
	}}

	roi, err := NewLocator(detector).Locate(context.Background(), page(1000, 700))
	require.NoError(t, err)
	require.Equal(t, image.Rect(10, 570, 990, 700), roi.Bounds())
	require.Equal(t, 1, detector.calls)
}

func TestLocateIgnoresIsolatedUpperCandidate(t *testing.T) {
	detector := &fakeDetector{lines: []Line{
		line(mrzLine1, 40, 100, 960, 130),
		line(mrzLine1, 40, 500, 960, 530),
		line(mrzLine2, 40, 540, 960, 570),
	}}

	roi, err := NewLocator(detector).Locate(context.Background(), page(1000, 700))
	require.NoError(t, err)
	require.Equal(t, image.Rect(10, 470, 990, 600), roi.Bounds())
}

func TestLocateSingleLineKeepsMargin(t *testing.T) {
	// a missed neighbour line still falls inside the one line margin
	detector := &fakeDetector{lines: []Line{line(mrzLine2, 40, 640, 960, 670)}}

	roi, err := NewLocator(detector).Locate(context.Background(), page(1000, 700))
	require.NoError(t, err)
	require.Equal(t, image.Rect(10, 610, 990, 700), roi.Bounds())
}

func TestLocateAcceptsSpacedOCROutput(t *testing.T) {
	spaced := "P<UTO ERIKSSON << ANNA < MARIA <<<<<<<<<<<<<<<"
	detector := &fakeDetector{lines: []Line{
		line(spaced, 40, 600, 960, 630),
		line(mrzLine2, 40, 640, 960, 670),
	}}

	_, err := NewLocator(detector).Locate(context.Background(), page(1000, 700))
	require.NoError(t, err)
}

func TestLocateNotFound(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
	}{
		{"no lines", nil},
		{"only short lines", []Line{line("PASSPORT", 0, 0, 100, 20), line("P<UTO", 0, 30, 100, 50)}},
		{"long lines without fillers", []Line{line("THIS IS A LONG LINE OF ORDINARY PRINTED TEXT", 0, 0, 900, 20)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocator(&fakeDetector{lines: tt.lines}).Locate(context.Background(), page(1000, 700))
			require.ErrorIs(t, err, ErrMRZNotFound)
		})
	}
}

func TestLocateDetectorError(t *testing.T) {
	boom := errors.New("tesseract crashed")
	_, err := NewLocator(&fakeDetector{err: boom}).Locate(context.Background(), page(100, 100))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrMRZNotFound)
}

func TestLocateCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	detector := &fakeDetector{lines: []Line{
		line(mrzLine1, 40, 600, 960, 630),
		line(mrzLine2, 40, 640, 960, 670),
	}}
	_, err := NewLocator(detector).Locate(ctx, page(1000, 700))
	require.ErrorIs(t, err, context.Canceled)
}

func TestMRZBlockCapsAtThreeLines(t *testing.T) {
	l := NewLocator(nil)
	block := l.mrzBlock([]Line{
		line(mrzLine1, 0, 0, 900, 30),
		line(mrzLine1, 0, 40, 900, 70),
		line(mrzLine1, 0, 80, 900, 110),
		line(mrzLine2, 0, 120, 900, 150),
	})
	require.Len(t, block, maxMRZLines)
	require.Equal(t, 40, block[0].Box.Min.Y)
	require.Equal(t, mrzLine2, block[2].Text)
}

func TestSplitLines(t *testing.T) {
	require.Equal(t, []string{mrzLine1, mrzLine2}, SplitLines(mrzLine1+"\n\n  "+mrzLine2+"  \r\n"))
	require.Nil(t, SplitLines(" \n "))
}
