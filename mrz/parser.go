// Package mrz extracts identity fields from the two 44 character lines of a
// TD3 (passport) machine readable zone.
package mrz

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	LineLength = 44
	Filler     = '<'

	nameDelimiter = "<<"
)

// Field offsets on line 2, in characters.
const (
	documentNumberStart = 0
	documentNumberEnd   = 9
	expiryStart         = 21
	expiryEnd           = 27
	nameStart           = 5
)

var ErrInsufficientLines = errors.New("mrz needs at least two recognised lines")

// Identity is the record returned to clients.
type Identity struct {
	Name           string
	PassportNumber string
	ExpirationDate string
}

// Record keeps everything the parser reads from the two lines, including the
// parts that are not part of the response.
type Record struct {
	Line1    string
	Line2    string
	Surname  string
	Identity Identity
}

// Pad upper-cases a line and right-pads it with fillers up to LineLength.
// Longer lines are returned unchanged.
func Pad(line string) string {
	line = upper(line)
	if n := len([]rune(line)); n < LineLength {
		line += strings.Repeat(string(Filler), LineLength-n)
	}
	return line
}

// Clean keeps letters and numbers only and upper-cases the result.
func Clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return upper(b.String())
}

// ParseLines parses the first two OCR lines. Additional lines are ignored.
func ParseLines(lines []string) (Record, error) {
	if len(lines) < 2 {
		return Record{}, fmt.Errorf("%w: got %d", ErrInsufficientLines, len(lines))
	}
	return Parse(lines[0], lines[1])
}

// Parse extracts the identity from line 1 (document type and name) and
// line 2 (document number, dates, nationality).
func Parse(line1, line2 string) (Record, error) {
	a := []rune(Pad(line1))
	b := []rune(Pad(line2))

	surname, names := splitName(string(a[nameStart:LineLength]))

	expiry, err := NormalizeDate(string(b[expiryStart:expiryEnd]))
	if err != nil {
		return Record{}, fmt.Errorf("failed to normalize expiration date: %w", err)
	}

	return Record{
		Line1:   string(a),
		Line2:   string(b),
		Surname: strings.TrimSpace(strings.ReplaceAll(surname, string(Filler), " ")),
		Identity: Identity{
			Name:           upper(strings.TrimSpace(strings.ReplaceAll(names, string(Filler), " "))),
			PassportNumber: Clean(string(b[documentNumberStart:documentNumberEnd])),
			ExpirationDate: expiry,
		},
	}, nil
}

// splitName splits the name field on the first "<<". Without a delimiter the
// whole field is the surname.
func splitName(field string) (surname, names string) {
	surname, names, found := strings.Cut(field, nameDelimiter)
	if !found {
		return field, ""
	}
	return surname, names
}

func upper(s string) string {
	// a Caser keeps state, so one per call
	return cases.Upper(language.Und).String(s)
}
