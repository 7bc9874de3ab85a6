package tle

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxNameLength is the recommended upper bound for a name line.
const MaxNameLength = 24

// ValidateLineStructure checks length, leading line digit and checksum of a
// data line. A wrong length stops further checks on that line.
func ValidateLineStructure(line string, n int) []Issue {
	if len(line) != LineLength {
		iss := newError(CodeInvalidLineLength, n, "",
			fmt.Sprintf("line %d must be %d characters, got %d", n, LineLength, len(line)))
		iss.Expected = LineLength
		iss.Actual = len(line)
		return []Issue{iss}
	}
	var issues []Issue
	want := byte('0' + n)
	if line[0] != want {
		iss := newError(CodeInvalidLineNumber, n, FieldLineNumber,
			fmt.Sprintf("line %d must start with %q, got %q", n, string(want), line[:1]))
		iss.Expected = string(want)
		iss.Actual = line[:1]
		issues = append(issues, iss)
	}
	issues = append(issues, ValidateChecksum(line, n)...)
	return issues
}

// ValidateSatelliteNumber checks that both lines carry the same numeric
// catalog number.
func ValidateSatelliteNumber(line1, line2 string) []Issue {
	f1 := mustLookup(1, FieldSatelliteNumber)
	f2 := mustLookup(2, FieldSatelliteNumber)
	n1 := Extract(line1, f1)
	n2 := Extract(line2, f2)

	var issues []Issue
	for i, v := range []string{n1, n2} {
		if _, err := strconv.Atoi(v); err != nil {
			iss := newError(CodeInvalidSatelliteNumber, i+1, FieldSatelliteNumber,
				fmt.Sprintf("satellite number %q on line %d is not numeric", v, i+1))
			iss.Actual = v
			issues = append(issues, iss)
		}
	}
	if n1 != n2 {
		iss := newError(CodeSatelliteNumberMismatch, 2, FieldSatelliteNumber,
			fmt.Sprintf("satellite number mismatch: line 1 has %q, line 2 has %q", n1, n2))
		iss.Expected = n1
		iss.Actual = n2
		issues = append(issues, iss)
	}
	return issues
}

// ValidateClassification accepts U, C and S.
func ValidateClassification(line1 string) []Issue {
	c := Extract(line1, mustLookup(1, FieldClassification))
	switch c {
	case "U", "C", "S":
		return nil
	}
	iss := newError(CodeInvalidClassification, 1, FieldClassification,
		fmt.Sprintf("classification %q is not one of U, C, S", c))
	iss.Expected = "U|C|S"
	iss.Actual = c
	return []Issue{iss}
}

// ValidateNumericRange parses value as a float and checks it lies in
// [min, max].
func ValidateNumericRange(value, name string, min, max float64) []Issue {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		iss := newError(CodeInvalidNumberFormat, 0, name, fmt.Sprintf("%s %q is not a number", name, value))
		iss.Actual = value
		return []Issue{iss}
	}
	if v < min || v > max {
		iss := newError(CodeValueOutOfRange, 0, name,
			fmt.Sprintf("%s %v is outside [%v, %v]", name, v, min, max))
		iss.Expected = fmt.Sprintf("[%v, %v]", min, max)
		iss.Actual = v
		return []Issue{iss}
	}
	return nil
}

type rangeRule struct {
	field    FieldSpec
	min, max float64
	optional bool
	warnOnly bool
	value    func(string) string
}

var rangeTable = []rangeRule{
	{field: mustLookup(1, FieldSatelliteNumber), min: 1, max: 99999},
	{field: mustLookup(1, FieldIntlDesigYear), min: 0, max: 99, optional: true},
	{field: mustLookup(1, FieldIntlDesigLaunch), min: 1, max: 999, optional: true},
	{field: mustLookup(1, FieldEphemerisType), min: 0, max: 9, optional: true},
	{field: mustLookup(1, FieldElementSetNumber), min: 0, max: 9999, optional: true},
	{field: mustLookup(1, FieldEpochYear), min: 0, max: 99},
	{field: mustLookup(1, FieldEpochDay), min: 1, max: 366.99999999},
	{field: mustLookup(2, FieldInclination), min: 0, max: 180},
	{field: mustLookup(2, FieldRightAscension), min: 0, max: 360},
	{field: mustLookup(2, FieldEccentricity), min: 0, max: 1, value: impliedDecimal},
	{field: mustLookup(2, FieldArgumentOfPerigee), min: 0, max: 360},
	{field: mustLookup(2, FieldMeanAnomaly), min: 0, max: 360},
	{field: mustLookup(2, FieldMeanMotion), min: 0, max: 20, warnOnly: true},
	{field: mustLookup(2, FieldRevolutionNumber), min: 0, max: 99999, optional: true},
}

func impliedDecimal(s string) string {
	if s == "" {
		return s
	}
	return "0." + s
}

// ValidateRanges applies the range table to rec. Blank optional fields are
// skipped; the mean motion bound only ever produces warnings.
func ValidateRanges(rec *ParsedTLE) (errs, warns []Issue) {
	for _, rule := range rangeTable {
		raw := rule.field.Get(rec)
		if raw == "" && rule.optional {
			continue
		}
		value := raw
		if rule.value != nil {
			value = rule.value(raw)
		}
		for _, iss := range ValidateNumericRange(value, rule.field.Name, rule.min, rule.max) {
			iss.Line = rule.field.Line
			if rule.warnOnly {
				warns = append(warns, iss.asWarning())
				continue
			}
			errs = append(errs, iss)
		}
	}
	return errs, warns
}

func validateName(name string) []Issue {
	if len(name) <= MaxNameLength {
		return nil
	}
	iss := newError(CodeNameTooLong, 0, FieldName,
		fmt.Sprintf("satellite name is %d characters, recommended maximum is %d", len(name), MaxNameLength))
	iss.Expected = MaxNameLength
	iss.Actual = len(name)
	return []Issue{iss}
}
