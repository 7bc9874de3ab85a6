package tle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EpochPivot splits two-digit epoch years: values at or above it belong to
// the 1900s, values below it to the 2000s.
const EpochPivot = 57

var errEmptyField = errors.New("empty field")

// FullYear expands a two-digit epoch year.
func FullYear(yy int) int {
	if yy >= EpochPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

// Epoch converts EpochYear and EpochDay to a UTC time. Day 1.0 is
// January 1st 00:00.
func (r *ParsedTLE) Epoch() (time.Time, error) {
	yy, err := strconv.Atoi(r.EpochYear)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", r.EpochYear, err)
	}
	day, err := strconv.ParseFloat(r.EpochDay, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", r.EpochDay, err)
	}
	t := time.Date(FullYear(yy), 1, 1, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration((day - 1) * float64(24*time.Hour))), nil
}

// CatalogNumber returns the line 1 catalog number as an integer.
func (r *ParsedTLE) CatalogNumber() (int, error) {
	n, err := strconv.Atoi(r.SatelliteNumber1)
	if err != nil {
		return 0, fmt.Errorf("invalid catalog number %q: %w", r.SatelliteNumber1, err)
	}
	return n, nil
}

// IntlDesignator joins the three designator parts, e.g. "98067A".
func (r *ParsedTLE) IntlDesignator() string {
	return r.IntlDesignatorYear + r.IntlDesignatorLaunch + r.IntlDesignatorPiece
}

func parseFloatField(name, s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s: %w", name, errEmptyField)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, s, err)
	}
	return v, nil
}

func (r *ParsedTLE) InclinationValue() (float64, error) {
	return parseFloatField(FieldInclination, r.Inclination)
}

func (r *ParsedTLE) RightAscensionValue() (float64, error) {
	return parseFloatField(FieldRightAscension, r.RightAscension)
}

// EccentricityValue applies the implied leading decimal point.
func (r *ParsedTLE) EccentricityValue() (float64, error) {
	if r.Eccentricity == "" {
		return 0, fmt.Errorf("%s: %w", FieldEccentricity, errEmptyField)
	}
	return parseFloatField(FieldEccentricity, "0."+r.Eccentricity)
}

func (r *ParsedTLE) ArgumentOfPerigeeValue() (float64, error) {
	return parseFloatField(FieldArgumentOfPerigee, r.ArgumentOfPerigee)
}

func (r *ParsedTLE) MeanAnomalyValue() (float64, error) {
	return parseFloatField(FieldMeanAnomaly, r.MeanAnomaly)
}

// MeanMotionValue is in revolutions per day.
func (r *ParsedTLE) MeanMotionValue() (float64, error) {
	return parseFloatField(FieldMeanMotion, r.MeanMotion)
}

func (r *ParsedTLE) FirstDerivativeValue() (float64, error) {
	return parseFloatField(FieldFirstDerivative, r.FirstDerivative)
}

func (r *ParsedTLE) SecondDerivativeValue() (float64, error) {
	return ParseExponent(r.SecondDerivative)
}

func (r *ParsedTLE) BStarValue() (float64, error) {
	return ParseExponent(r.BStar)
}

// ParseExponent decodes the compact "assumed decimal point" notation used by
// the drag terms: "-11606-4" is -0.11606e-4 and " 00000-0" is zero.
func ParseExponent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyField
	}
	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], s[1:]
	}
	cut := strings.LastIndexAny(s, "+- ")
	if cut <= 0 {
		return 0, fmt.Errorf("invalid exponent notation %q", sign+s)
	}
	mantissa, exp := s[:cut], strings.ReplaceAll(s[cut:], " ", "+")
	v, err := strconv.ParseFloat(sign+"0."+mantissa+"e"+exp, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid exponent notation %q: %w", sign+s, err)
	}
	return v, nil
}
