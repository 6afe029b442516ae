package mrz

import (
	"errors"
	"fmt"
	"time"
)

var ErrMalformedDate = errors.New("malformed mrz date")

// DisplayLayout is the format expiration dates are returned in.
const DisplayLayout = "02/01/2006"

// now is swapped in tests.
var now = time.Now

// ParseDate parses a YYMMDD fragment. The two digit year is placed in the
// century that keeps it within 50 years of the current year.
func ParseDate(fragment string) (time.Time, error) {
	if len(fragment) != 6 {
		return time.Time{}, fmt.Errorf("%w: expected 6 digits, got %q", ErrMalformedDate, fragment)
	}
	for i := 0; i < len(fragment); i++ {
		if fragment[i] < '0' || fragment[i] > '9' {
			return time.Time{}, fmt.Errorf("%w: non numeric fragment %q", ErrMalformedDate, fragment)
		}
	}

	yy := atoi2(fragment[0:2])
	month := atoi2(fragment[2:4])
	day := atoi2(fragment[4:6])

	thisYear := now().Year()
	year := thisYear/100*100 + yy
	if year >= thisYear+50 {
		year -= 100
	} else if year < thisYear-50 {
		year += 100
	}

	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: month out of range in %q", ErrMalformedDate, fragment)
	}
	parsed := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflowing days, so a changed day means it did not exist
	if day < 1 || parsed.Day() != day {
		return time.Time{}, fmt.Errorf("%w: day out of range in %q", ErrMalformedDate, fragment)
	}
	return parsed, nil
}

// NormalizeDate turns a YYMMDD fragment into DD/MM/YYYY.
func NormalizeDate(fragment string) (string, error) {
	parsed, err := ParseDate(fragment)
	if err != nil {
		return "", err
	}
	return parsed.Format(DisplayLayout), nil
}

func atoi2(s string) int {
	return int(s[0]-'0')*10 + int(s[1]-'0')
}
