package tle

import (
	"fmt"
	"strconv"
)

const LineLength = 69

// Checksum computes the modulo-10 checksum over every character of line
// except the last one. Digits count their value, '-' counts 1, anything else
// counts 0.
func Checksum(line string) int {
	if len(line) == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < len(line)-1; i++ {
		c := line[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// ChecksumDigit is Checksum rendered as the character that closes a line.
func ChecksumDigit(line string) byte {
	return byte('0' + Checksum(line))
}

// ValidateChecksum compares the embedded checksum digit of a 69-column line
// with the computed one. lineNo is only used for reporting.
func ValidateChecksum(line string, lineNo int) []Issue {
	if len(line) != LineLength {
		iss := newError(CodeInvalidLineLength, lineNo, "",
			fmt.Sprintf("line %d must be %d characters, got %d", lineNo, LineLength, len(line)))
		iss.Expected = LineLength
		iss.Actual = len(line)
		return []Issue{iss}
	}
	last := line[LineLength-1:]
	actual, err := strconv.Atoi(last)
	if err != nil {
		iss := newError(CodeInvalidChecksumChar, lineNo, FieldChecksum,
			fmt.Sprintf("checksum character %q on line %d is not a digit", last, lineNo))
		iss.Actual = last
		return []Issue{iss}
	}
	expected := Checksum(line)
	if expected != actual {
		iss := newError(CodeChecksumMismatch, lineNo, FieldChecksum,
			fmt.Sprintf("checksum mismatch on line %d: expected %d, got %d", lineNo, expected, actual))
		iss.Expected = expected
		iss.Actual = actual
		return []Issue{iss}
	}
	return nil
}

func isChecksumCode(c Code) bool {
	return c == CodeChecksumMismatch || c == CodeInvalidChecksumChar
}
