package mrz

import (
	"fmt"

	gmrtdmrz "github.com/gmrtd/gmrtd/mrz"
)

var checkDigitWeights = [3]int{7, 3, 1}

// CheckDigit computes the ICAO 9303 check digit of s. Digits count as their
// value, letters as 10..35 and fillers as zero. ok is false when s holds a
// character outside the MRZ alphabet.
func CheckDigit(s string) (digit byte, ok bool) {
	sum := 0
	for i := 0; i < len(s); i++ {
		var v int
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		case c == Filler:
			v = 0
		default:
			return 0, false
		}
		sum += v * checkDigitWeights[i%3]
	}
	return byte('0' + sum%10), true
}

// CheckDigitReport lists which check digits of line 2 match.
type CheckDigitReport struct {
	DocumentNumber bool
	DateOfBirth    bool
	DateOfExpiry   bool
	Composite      bool
}

func (r CheckDigitReport) Valid() bool {
	return r.DocumentNumber && r.DateOfBirth && r.DateOfExpiry && r.Composite
}

// VerifyCheckDigits checks the four check digits of a TD3 line 2. The line is
// padded first. Offsets are counted in runes, so a stray multi byte
// character fails its own field only.
func VerifyCheckDigits(line2 string) CheckDigitReport {
	b := []rune(Pad(line2))
	field := func(start, end int) string { return string(b[start:end]) }
	composite := field(0, 10) + field(13, 20) + field(21, 43)
	return CheckDigitReport{
		DocumentNumber: matches(field(0, 9), b[9]),
		DateOfBirth:    matches(field(13, 19), b[19]),
		DateOfExpiry:   matches(field(21, 27), b[27]),
		Composite:      matches(composite, b[43]),
	}
}

func matches(field string, want rune) bool {
	got, ok := CheckDigit(field)
	return ok && rune(got) == want
}

// Details is the structural decode of both lines.
type Details struct {
	DocumentCode string
	IssuingState string
	Nationality  string
	Sex          string
	Primary      string
}

// Decode runs the full TD3 decoder over the padded lines.
func Decode(line1, line2 string) (Details, error) {
	a, b := Pad(line1), Pad(line2)
	if len(a) != LineLength || len(b) != LineLength {
		return Details{}, fmt.Errorf("td3 lines must be %d characters, got %d and %d", LineLength, len(a), len(b))
	}
	decoded, err := gmrtdmrz.MrzDecode(a + b)
	if err != nil {
		return Details{}, fmt.Errorf("failed to decode td3 mrz: %w", err)
	}
	details := Details{
		DocumentCode: decoded.DocumentCode,
		IssuingState: decoded.IssuingState,
		Nationality:  decoded.Nationality,
		Sex:          decoded.Sex,
	}
	if decoded.NameOfHolder != nil {
		details.Primary = decoded.NameOfHolder.Primary
	}
	return details, nil
}
