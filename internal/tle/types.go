package tle

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

type Code string

const (
	CodeEmptyInput             Code = "EMPTY_INPUT"
	CodeInvalidLineCount       Code = "INVALID_LINE_COUNT"
	CodeInvalidLineLength      Code = "INVALID_LINE_LENGTH"
	CodeInvalidLineNumber      Code = "INVALID_LINE_NUMBER"
	CodeStateMachineLoop       Code = "STATE_MACHINE_LOOP"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"

	CodeChecksumMismatch        Code = "CHECKSUM_MISMATCH"
	CodeInvalidChecksumChar     Code = "INVALID_CHECKSUM_CHARACTER"
	CodeSatelliteNumberMismatch Code = "SATELLITE_NUMBER_MISMATCH"
	CodeInvalidSatelliteNumber  Code = "INVALID_SATELLITE_NUMBER"
	CodeInvalidClassification   Code = "INVALID_CLASSIFICATION"
	CodeValueOutOfRange         Code = "VALUE_OUT_OF_RANGE"
	CodeInvalidNumberFormat     Code = "INVALID_NUMBER_FORMAT"
	CodeNameTooLong             Code = "SATELLITE_NAME_TOO_LONG"

	CodeClassifiedData       Code = "CLASSIFIED_DATA"
	CodeDeprecatedEpochYear  Code = "DEPRECATED_EPOCH_YEAR"
	CodeStaleTLE             Code = "STALE_TLE"
	CodeHighEccentricity     Code = "HIGH_ECCENTRICITY"
	CodeLowMeanMotion        Code = "LOW_MEAN_MOTION"
	CodeRevolutionRollover   Code = "REVOLUTION_NUMBER_ROLLOVER"
	CodeNearZeroDrag         Code = "NEAR_ZERO_DRAG"
	CodeNegativeDecay        Code = "NEGATIVE_DECAY"
	CodeNonStandardEphemeris Code = "NON_STANDARD_EPHEMERIS"
	CodePartialField         Code = "PARTIAL_FIELD"
	CodeMissingField         Code = "MISSING_FIELD"
	CodeDuplicateRecord      Code = "DUPLICATE_RECORD"
)

// Issue is a single validation finding. It is used for both errors and
// warnings; Severity tells them apart.
type Issue struct {
	Code     Code     `json:"code" yaml:"code"`
	Message  string   `json:"message" yaml:"message"`
	Severity Severity `json:"severity" yaml:"severity"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
	Expected any      `json:"expected,omitempty" yaml:"expected,omitempty"`
	Actual   any      `json:"actual,omitempty" yaml:"actual,omitempty"`
}

func (i Issue) Error() string {
	var b strings.Builder
	b.WriteString(string(i.Code))
	if i.Line > 0 {
		fmt.Fprintf(&b, " (line %d", i.Line)
		if i.Field != "" {
			fmt.Fprintf(&b, ", %s", i.Field)
		}
		b.WriteString(")")
	} else if i.Field != "" {
		fmt.Fprintf(&b, " (%s)", i.Field)
	}
	b.WriteString(": ")
	b.WriteString(i.Message)
	return b.String()
}

// asWarning returns a copy of i downgraded to a warning.
func (i Issue) asWarning() Issue {
	i.Severity = SeverityWarning
	return i
}

func newError(code Code, line int, field, msg string) Issue {
	return Issue{Code: code, Message: msg, Severity: SeverityError, Line: line, Field: field}
}

func newWarning(code Code, line int, field, msg string) Issue {
	return Issue{Code: code, Message: msg, Severity: SeverityWarning, Line: line, Field: field}
}

// ParsedTLE holds every fixed-column field of a TLE record as the exact
// trimmed substring found in the source lines. Numeric values are derived on
// demand, see numeric.go.
type ParsedTLE struct {
	Name string `json:"satelliteName,omitempty" yaml:"satelliteName,omitempty"`

	LineNumber1          string `json:"lineNumber1" yaml:"lineNumber1"`
	SatelliteNumber1     string `json:"satelliteNumber1" yaml:"satelliteNumber1"`
	Classification       string `json:"classification" yaml:"classification"`
	IntlDesignatorYear   string `json:"internationalDesignatorYear" yaml:"internationalDesignatorYear"`
	IntlDesignatorLaunch string `json:"internationalDesignatorLaunchNumber" yaml:"internationalDesignatorLaunchNumber"`
	IntlDesignatorPiece  string `json:"internationalDesignatorPiece" yaml:"internationalDesignatorPiece"`
	EpochYear            string `json:"epochYear" yaml:"epochYear"`
	EpochDay             string `json:"epoch" yaml:"epoch"`
	FirstDerivative      string `json:"firstDerivative" yaml:"firstDerivative"`
	SecondDerivative     string `json:"secondDerivative" yaml:"secondDerivative"`
	BStar                string `json:"bStar" yaml:"bStar"`
	EphemerisType        string `json:"ephemerisType" yaml:"ephemerisType"`
	ElementSetNumber     string `json:"elementSetNumber" yaml:"elementSetNumber"`
	Checksum1            string `json:"checksum1" yaml:"checksum1"`

	LineNumber2       string `json:"lineNumber2" yaml:"lineNumber2"`
	SatelliteNumber2  string `json:"satelliteNumber2" yaml:"satelliteNumber2"`
	Inclination       string `json:"inclination" yaml:"inclination"`
	RightAscension    string `json:"rightAscension" yaml:"rightAscension"`
	Eccentricity      string `json:"eccentricity" yaml:"eccentricity"`
	ArgumentOfPerigee string `json:"argumentOfPerigee" yaml:"argumentOfPerigee"`
	MeanAnomaly       string `json:"meanAnomaly" yaml:"meanAnomaly"`
	MeanMotion        string `json:"meanMotion" yaml:"meanMotion"`
	RevolutionNumber  string `json:"revolutionNumber" yaml:"revolutionNumber"`
	Checksum2         string `json:"checksum2" yaml:"checksum2"`

	Warnings []Issue  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Comments []string `json:"comments,omitempty" yaml:"comments,omitempty"`
}

// ValidationResult is the outcome of Validate. Valid is true exactly when
// Errors is empty, and Record is only set in that case.
type ValidationResult struct {
	Valid    bool       `json:"isValid"`
	Record   *ParsedTLE `json:"record,omitempty"`
	Errors   []Issue    `json:"errors"`
	Warnings []Issue    `json:"warnings"`
}

// ValidationError is returned by Parse when the input does not validate.
type ValidationError struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return "tle: validation failed"
	}
	if len(e.Errors) == 1 {
		return "tle: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("tle: %s (and %d more errors)", e.Errors[0].Error(), len(e.Errors)-1)
}

// Codes lists the distinct error codes carried by e in order of appearance.
func (e *ValidationError) Codes() []Code {
	if e == nil {
		return nil
	}
	seen := make(map[Code]struct{}, len(e.Errors))
	var out []Code
	for _, iss := range e.Errors {
		if _, ok := seen[iss.Code]; ok {
			continue
		}
		seen[iss.Code] = struct{}{}
		out = append(out, iss.Code)
	}
	return out
}

type Mode string

const (
	ModeStrict     Mode = "strict"
	ModePermissive Mode = "permissive"
)

// Options controls both parsing entry points. The zero value disables every
// check; start from DefaultOptions.
type Options struct {
	Validate              bool `json:"validate" yaml:"validate"`
	StrictChecksums       bool `json:"strictChecksums" yaml:"strictChecksums"`
	ValidateRanges        bool `json:"validateRanges" yaml:"validateRanges"`
	IncludeWarnings       bool `json:"includeWarnings" yaml:"includeWarnings"`
	IncludeComments       bool `json:"includeComments" yaml:"includeComments"`
	Mode                  Mode `json:"mode" yaml:"mode"`
	IncludePartialResults bool `json:"includePartialResults" yaml:"includePartialResults"`
}

func DefaultOptions() Options {
	return Options{
		Validate:              true,
		StrictChecksums:       true,
		ValidateRanges:        true,
		IncludeWarnings:       true,
		IncludeComments:       true,
		Mode:                  ModeStrict,
		IncludePartialResults: true,
	}
}

// PermissiveOptions returns the defaults with Mode set to permissive.
func PermissiveOptions() Options {
	opts := DefaultOptions()
	opts.Mode = ModePermissive
	return opts
}

func (o Options) permissive() bool {
	return o.Mode == ModePermissive
}

// ParseMode converts a flag or config value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return ModeStrict, nil
	case "permissive", "lenient":
		return ModePermissive, nil
	default:
		return ModeStrict, fmt.Errorf("unknown mode %q", s)
	}
}
