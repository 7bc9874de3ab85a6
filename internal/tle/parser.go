package tle

import (
	"fmt"
	"strings"
	"time"
)

// nowFunc anchors the stale epoch heuristic. Tests replace it.
var nowFunc = time.Now

// Validate runs the strict orchestrator over text and reports every issue
// found. The record is only extracted once no fatal issue remains.
func Validate(text string, opts Options) ValidationResult {
	res := ValidationResult{Errors: []Issue{}, Warnings: []Issue{}}

	if strings.TrimSpace(text) == "" {
		res.Errors = append(res.Errors, newError(CodeEmptyInput, 0, "", "input is empty"))
		return res
	}

	data, comments := SplitComments(NormalizeLines(text))
	if len(data) != 2 && len(data) != 3 {
		iss := newError(CodeInvalidLineCount, 0, "",
			fmt.Sprintf("expected 2 or 3 data lines, got %d", len(data)))
		iss.Expected = "2 or 3"
		iss.Actual = len(data)
		res.Errors = append(res.Errors, iss)
		return res
	}
	var name string
	if len(data) == 3 {
		name = trimNamePrefix(data[0])
		data = data[1:]
	}
	line1, line2 := data[0], data[1]

	if !opts.Validate {
		res.Record = finishRecord(extractRecord(name, line1, line2), comments, nil, opts)
		res.Valid = true
		return res
	}

	// Line shape first. Length and line number problems stop here in every
	// mode; checksum findings are carried into the field stage.
	var fieldIssues []Issue
	for n, line := range []string{line1, line2} {
		for _, iss := range ValidateLineStructure(line, n+1) {
			if isChecksumCode(iss.Code) {
				fieldIssues = append(fieldIssues, iss)
				continue
			}
			res.Errors = append(res.Errors, iss)
		}
	}
	if len(res.Errors) > 0 {
		return res
	}

	rec := extractRecord(name, line1, line2)
	fieldIssues = append(fieldIssues, ValidateSatelliteNumber(line1, line2)...)
	fieldIssues = append(fieldIssues, ValidateClassification(line1)...)
	fieldIssues = append(fieldIssues, validateName(name)...)
	if opts.ValidateRanges {
		errs, warns := ValidateRanges(rec)
		fieldIssues = append(fieldIssues, errs...)
		res.Warnings = append(res.Warnings, warns...)
	}
	for _, iss := range fieldIssues {
		if downgradable(iss.Code, opts) {
			res.Warnings = append(res.Warnings, iss.asWarning())
			continue
		}
		res.Errors = append(res.Errors, iss)
	}
	if len(res.Errors) > 0 {
		return res
	}

	if opts.IncludeWarnings {
		res.Warnings = append(res.Warnings, DetectWarnings(rec, nowFunc())...)
	}
	res.Record = finishRecord(rec, comments, res.Warnings, opts)
	res.Valid = true
	return res
}

// Parse is Validate for callers that only want the record. Failures come
// back as *ValidationError.
func Parse(text string, opts Options) (*ParsedTLE, error) {
	res := Validate(text, opts)
	if !res.Valid {
		return nil, &ValidationError{Errors: res.Errors, Warnings: res.Warnings}
	}
	return res.Record, nil
}

func downgradable(code Code, opts Options) bool {
	if isChecksumCode(code) && !opts.StrictChecksums {
		return true
	}
	if !opts.permissive() {
		return false
	}
	switch code {
	case CodeChecksumMismatch, CodeInvalidChecksumChar,
		CodeSatelliteNumberMismatch, CodeInvalidClassification, CodeNameTooLong:
		return true
	}
	return false
}

func finishRecord(rec *ParsedTLE, comments []string, warnings []Issue, opts Options) *ParsedTLE {
	if opts.IncludeComments && len(comments) > 0 {
		rec.Comments = comments
	}
	if opts.IncludeWarnings && len(warnings) > 0 {
		rec.Warnings = warnings
	}
	return rec
}

// trimNamePrefix drops the "0 " marker of the three-line 3LE form. Bytes
// that are not UTF-8 become U+FFFD so names encode cleanly.
func trimNamePrefix(name string) string {
	name = strings.ToValidUTF8(name, "\uFFFD")
	if strings.HasPrefix(name, "0 ") {
		return strings.TrimSpace(name[2:])
	}
	return name
}
