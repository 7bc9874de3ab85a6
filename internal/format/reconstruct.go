package format

import (
	"fmt"
	"strings"

	"example.com/tlegate/internal/tle"
)

// Lines rebuilds the two data lines of rec from its field values and closes
// each with a freshly computed checksum. Field values wider than their
// columns are rejected.
func Lines(rec *tle.ParsedTLE) (line1, line2 string, err error) {
	if rec == nil {
		return "", "", fmt.Errorf("nil record")
	}
	line1, err = buildLine(rec, tle.Line1Fields, "1")
	if err != nil {
		return "", "", err
	}
	line2, err = buildLine(rec, tle.Line2Fields, "2")
	if err != nil {
		return "", "", err
	}
	return line1, line2, nil
}

// Reconstruct renders rec as TLE text: the name line when present, then both
// data lines.
func Reconstruct(rec *tle.ParsedTLE) (string, error) {
	l1, l2, err := Lines(rec)
	if err != nil {
		return "", err
	}
	if rec.Name == "" {
		return l1 + "\n" + l2 + "\n", nil
	}
	return rec.Name + "\n" + l1 + "\n" + l2 + "\n", nil
}

func buildLine(rec *tle.ParsedTLE, fields []tle.FieldSpec, number string) (string, error) {
	buf := []byte(strings.Repeat(" ", tle.LineLength))
	for _, f := range fields {
		v := f.Get(rec)
		switch f.Name {
		case tle.FieldChecksum:
			continue
		case tle.FieldLineNumber:
			v = number
		}
		if len(v) > f.Width() {
			return "", fmt.Errorf("line %d %s %q wider than %d columns", f.Line, f.Name, v, f.Width())
		}
		start := f.Start
		if f.Align == tle.AlignRight {
			start = f.End - len(v)
		}
		copy(buf[start:], v)
	}
	buf[tle.LineLength-1] = tle.ChecksumDigit(string(buf))
	return string(buf), nil
}
