package tle

import (
	"errors"
	"reflect"
	"testing"
	"unicode/utf8"
)

func TestValidateRoundTrip(t *testing.T) {
	withNow(t, issEpochNow)
	res := Validate(join(issName, issLine1, issLine2), DefaultOptions())
	if !res.Valid {
		t.Fatalf("expected valid record, errors: %v", res.Errors)
	}
	rec := res.Record
	if rec.Name != issName {
		t.Fatalf("Name = %q, want %q", rec.Name, issName)
	}
	for _, f := range Line1Fields {
		if got, want := f.Get(rec), Extract(issLine1, f); got != want {
			t.Fatalf("line 1 %s = %q, want %q", f.Name, got, want)
		}
	}
	for _, f := range Line2Fields {
		if got, want := f.Get(rec), Extract(issLine2, f); got != want {
			t.Fatalf("line 2 %s = %q, want %q", f.Name, got, want)
		}
	}

	want := map[string]string{
		"IntlDesignator":   rec.IntlDesignator(),
		"EpochDay":         rec.EpochDay,
		"FirstDerivative":  rec.FirstDerivative,
		"SecondDerivative": rec.SecondDerivative,
		"BStar":            rec.BStar,
		"ElementSetNumber": rec.ElementSetNumber,
		"Eccentricity":     rec.Eccentricity,
		"MeanMotion":       rec.MeanMotion,
		"RevolutionNumber": rec.RevolutionNumber,
	}
	expected := map[string]string{
		"IntlDesignator":   "98067A",
		"EpochDay":         "264.51782528",
		"FirstDerivative":  "-.00002182",
		"SecondDerivative": "00000-0",
		"BStar":            "-11606-4",
		"ElementSetNumber": "292",
		"Eccentricity":     "0006703",
		"MeanMotion":       "15.72125391",
		"RevolutionNumber": "56353",
	}
	if !reflect.DeepEqual(want, expected) {
		t.Fatalf("fields = %v, want %v", want, expected)
	}
}

func TestValidateIdempotent(t *testing.T) {
	withNow(t, issEpochNow)
	inputs := []string{
		join(issName, issLine1, issLine2),
		join(issLine1BadSum, issLine2Other),
		join(issLine1BadClass, issLine2BadIncl),
		"garbage",
	}
	for _, in := range inputs {
		a := Validate(in, DefaultOptions())
		b := Validate(in, DefaultOptions())
		if !reflect.DeepEqual(a.Errors, b.Errors) || !reflect.DeepEqual(a.Warnings, b.Warnings) {
			t.Fatalf("Validate(%q) not idempotent:\n%v\n%v", in, a, b)
		}
	}
}

func TestValidateModeMonotonic(t *testing.T) {
	withNow(t, issEpochNow)
	inputs := []string{
		join(issName, issLine1, issLine2),
		join(issLine1BadSum, issLine2),
		join(issLine1, issLine2Other),
		join(issLine1BadClass, issLine2),
		join("A SATELLITE NAME LONGER THAN TWENTY FOUR", issLine1, issLine2),
		join(issLine1BadSum, issLine2BadIncl),
		join(issLine1[:60], issLine2),
		"",
	}
	for _, in := range inputs {
		strict := Validate(in, DefaultOptions())
		lax := Validate(in, PermissiveOptions())
		remaining := map[Code]int{}
		for _, iss := range strict.Errors {
			remaining[iss.Code]++
		}
		for _, iss := range lax.Errors {
			if remaining[iss.Code] == 0 {
				t.Fatalf("permissive error %s not present in strict run for %q", iss.Code, in)
			}
			remaining[iss.Code]--
		}
	}
}

func TestValidateSatelliteNumberMismatch(t *testing.T) {
	withNow(t, issEpochNow)
	res := Validate(join(issLine1, issLine2Other), DefaultOptions())
	if res.Valid {
		t.Fatalf("expected invalid result")
	}
	if n := countCode(res.Errors, CodeSatelliteNumberMismatch); n != 1 {
		t.Fatalf("SATELLITE_NUMBER_MISMATCH count = %d, want 1 (errors %v)", n, codes(res.Errors))
	}
	if res.Record != nil {
		t.Fatalf("record must not be set on invalid result")
	}

	lax := Validate(join(issLine1, issLine2Other), PermissiveOptions())
	if !lax.Valid {
		t.Fatalf("permissive run should pass, errors %v", codes(lax.Errors))
	}
	if !hasCode(lax.Warnings, CodeSatelliteNumberMismatch) {
		t.Fatalf("mismatch should be downgraded to a warning, warnings %v", codes(lax.Warnings))
	}
}

func TestValidateModes(t *testing.T) {
	withNow(t, issEpochNow)
	noStrictSums := DefaultOptions()
	noStrictSums.StrictChecksums = false
	noRanges := DefaultOptions()
	noRanges.ValidateRanges = false

	tests := []struct {
		name      string
		text      string
		opts      Options
		valid     bool
		wantError Code
		wantWarn  Code
	}{
		{name: "checksum strict", text: join(issLine1BadSum, issLine2), opts: DefaultOptions(), wantError: CodeChecksumMismatch},
		{name: "checksum permissive", text: join(issLine1BadSum, issLine2), opts: PermissiveOptions(), valid: true, wantWarn: CodeChecksumMismatch},
		{name: "checksum not strict", text: join(issLine1BadSum, issLine2), opts: noStrictSums, valid: true, wantWarn: CodeChecksumMismatch},
		{name: "classification strict", text: join(issLine1BadClass, issLine2), opts: DefaultOptions(), wantError: CodeInvalidClassification},
		{name: "classification permissive", text: join(issLine1BadClass, issLine2), opts: PermissiveOptions(), valid: true, wantWarn: CodeInvalidClassification},
		{name: "range strict", text: join(issLine1, issLine2BadIncl), opts: DefaultOptions(), wantError: CodeValueOutOfRange},
		{name: "range permissive stays fatal", text: join(issLine1, issLine2BadIncl), opts: PermissiveOptions(), wantError: CodeValueOutOfRange},
		{name: "ranges disabled", text: join(issLine1, issLine2BadIncl), opts: noRanges, valid: true},
		{name: "short line fatal in permissive", text: join(issLine1[:68], issLine2), opts: PermissiveOptions(), wantError: CodeInvalidLineLength},
		{name: "swapped lines", text: join(issLine2, issLine1), opts: PermissiveOptions(), wantError: CodeInvalidLineNumber},
		{name: "empty", text: "  \n\t\n", opts: DefaultOptions(), wantError: CodeEmptyInput},
		{name: "one line", text: issLine1, opts: DefaultOptions(), wantError: CodeInvalidLineCount},
		{name: "four lines", text: join("A", "B", issLine1, issLine2), opts: DefaultOptions(), wantError: CodeInvalidLineCount},
		{name: "long name strict", text: join("A SATELLITE NAME LONGER THAN TWENTY FOUR", issLine1, issLine2), opts: DefaultOptions(), wantError: CodeNameTooLong},
		{name: "long name permissive", text: join("A SATELLITE NAME LONGER THAN TWENTY FOUR", issLine1, issLine2), opts: PermissiveOptions(), valid: true, wantWarn: CodeNameTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Validate(tc.text, tc.opts)
			if res.Valid != tc.valid {
				t.Fatalf("Valid = %v, want %v (errors %v)", res.Valid, tc.valid, codes(res.Errors))
			}
			if res.Valid != (len(res.Errors) == 0) {
				t.Fatalf("Valid disagrees with Errors: %v", res.Errors)
			}
			if tc.wantError != "" && !hasCode(res.Errors, tc.wantError) {
				t.Fatalf("errors %v missing %s", codes(res.Errors), tc.wantError)
			}
			if tc.wantWarn != "" && !hasCode(res.Warnings, tc.wantWarn) {
				t.Fatalf("warnings %v missing %s", codes(res.Warnings), tc.wantWarn)
			}
			for _, w := range res.Warnings {
				if w.Severity != SeverityWarning {
					t.Fatalf("warning %s has severity %s", w.Code, w.Severity)
				}
			}
		})
	}
}

func TestValidateCommentsAndThreeLineForm(t *testing.T) {
	withNow(t, issEpochNow)
	text := "# fetched 2008-09-21\r\n0 ISS (ZARYA)\r\n\t" + issLine1 + "\r\n# mid\r\n" + issLine2 + "\r\n"
	res := Validate(text, DefaultOptions())
	if !res.Valid {
		t.Fatalf("expected valid, errors %v", codes(res.Errors))
	}
	if res.Record.Name != "ISS (ZARYA)" {
		t.Fatalf("Name = %q", res.Record.Name)
	}
	want := []string{"# fetched 2008-09-21", "# mid"}
	if !reflect.DeepEqual(res.Record.Comments, want) {
		t.Fatalf("Comments = %v, want %v", res.Record.Comments, want)
	}

	opts := DefaultOptions()
	opts.IncludeComments = false
	if rec := Validate(text, opts).Record; rec.Comments != nil {
		t.Fatalf("comments attached although disabled: %v", rec.Comments)
	}
}

func TestValidateWarningsToggle(t *testing.T) {
	withNow(t, issEpochNow)
	res := Validate(join(issLine1, issLine2), DefaultOptions())
	if !hasCode(res.Warnings, CodeNegativeDecay) {
		t.Fatalf("expected NEGATIVE_DECAY, got %v", codes(res.Warnings))
	}
	if !reflect.DeepEqual(res.Record.Warnings, res.Warnings) {
		t.Fatalf("record warnings %v differ from result warnings %v", res.Record.Warnings, res.Warnings)
	}

	opts := DefaultOptions()
	opts.IncludeWarnings = false
	quiet := Validate(join(issLine1, issLine2), opts)
	if len(quiet.Warnings) != 0 || quiet.Record.Warnings != nil {
		t.Fatalf("warnings produced although disabled: %v", quiet.Warnings)
	}
}

func TestValidateWithoutValidation(t *testing.T) {
	opts := DefaultOptions()
	opts.Validate = false
	res := Validate(join(issLine1BadSum, issLine2Other), opts)
	if !res.Valid || res.Record == nil {
		t.Fatalf("expected unchecked extraction, got %+v", res)
	}
	if res.Record.SatelliteNumber2 != "25545" {
		t.Fatalf("SatelliteNumber2 = %q", res.Record.SatelliteNumber2)
	}
}

func TestParseReturnsValidationError(t *testing.T) {
	withNow(t, issEpochNow)
	rec, err := Parse(join(issLine1, issLine2Other), DefaultOptions())
	if rec != nil {
		t.Fatalf("expected nil record")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if got := verr.Codes(); !reflect.DeepEqual(got, []Code{CodeSatelliteNumberMismatch}) {
		t.Fatalf("Codes() = %v", got)
	}

	rec, err = Parse(join(issName, issLine1, issLine2), DefaultOptions())
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.SatelliteNumber1 != "25544" {
		t.Fatalf("SatelliteNumber1 = %q", rec.SatelliteNumber1)
	}
}

func TestNameInvalidUTF8(t *testing.T) {
	withNow(t, issEpochNow)
	text := join("0 \xff\xfeSAT", issLine1, issLine2)
	res := Validate(text, DefaultOptions())
	if !res.Valid {
		t.Fatalf("errors %v", codes(res.Errors))
	}
	if res.Record.Name != "\uFFFDSAT" || !utf8.ValidString(res.Record.Name) {
		t.Fatalf("Name = %q", res.Record.Name)
	}
	if recs := SplitRecords(text); len(recs) != 1 || !utf8.ValidString(recs[0].Name) {
		t.Fatalf("split = %+v", recs)
	}
}
