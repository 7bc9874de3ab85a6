package tle

import "strings"

type Align uint8

const (
	AlignRight Align = iota
	AlignLeft
)

// FieldSpec locates one field inside line 1 or line 2 as a half-open byte
// range. The offsets follow the NORAD fixed-column layout and must not move.
type FieldSpec struct {
	Name  string
	Line  int
	Start int
	End   int
	Align Align

	ref func(*ParsedTLE) *string
}

// Width is the number of columns the field occupies.
func (f FieldSpec) Width() int {
	return f.End - f.Start
}

// Get returns the value of the field held by rec.
func (f FieldSpec) Get(rec *ParsedTLE) string {
	return *f.ref(rec)
}

func (f FieldSpec) set(rec *ParsedTLE, v string) {
	*f.ref(rec) = v
}

const (
	FieldLineNumber        = "lineNumber"
	FieldSatelliteNumber   = "satelliteNumber"
	FieldClassification    = "classification"
	FieldIntlDesigYear     = "internationalDesignatorYear"
	FieldIntlDesigLaunch   = "internationalDesignatorLaunchNumber"
	FieldIntlDesigPiece    = "internationalDesignatorPiece"
	FieldEpochYear         = "epochYear"
	FieldEpochDay          = "epoch"
	FieldFirstDerivative   = "firstDerivative"
	FieldSecondDerivative  = "secondDerivative"
	FieldBStar             = "bStar"
	FieldEphemerisType     = "ephemerisType"
	FieldElementSetNumber  = "elementSetNumber"
	FieldChecksum          = "checksum"
	FieldInclination       = "inclination"
	FieldRightAscension    = "rightAscension"
	FieldEccentricity      = "eccentricity"
	FieldArgumentOfPerigee = "argumentOfPerigee"
	FieldMeanAnomaly       = "meanAnomaly"
	FieldMeanMotion        = "meanMotion"
	FieldRevolutionNumber  = "revolutionNumber"
	FieldName              = "satelliteName"
)

var Line1Fields = []FieldSpec{
	{Name: FieldLineNumber, Line: 1, Start: 0, End: 1, ref: func(r *ParsedTLE) *string { return &r.LineNumber1 }},
	{Name: FieldSatelliteNumber, Line: 1, Start: 2, End: 7, ref: func(r *ParsedTLE) *string { return &r.SatelliteNumber1 }},
	{Name: FieldClassification, Line: 1, Start: 7, End: 8, Align: AlignLeft, ref: func(r *ParsedTLE) *string { return &r.Classification }},
	{Name: FieldIntlDesigYear, Line: 1, Start: 9, End: 11, Align: AlignLeft, ref: func(r *ParsedTLE) *string { return &r.IntlDesignatorYear }},
	{Name: FieldIntlDesigLaunch, Line: 1, Start: 11, End: 14, Align: AlignLeft, ref: func(r *ParsedTLE) *string { return &r.IntlDesignatorLaunch }},
	{Name: FieldIntlDesigPiece, Line: 1, Start: 14, End: 17, Align: AlignLeft, ref: func(r *ParsedTLE) *string { return &r.IntlDesignatorPiece }},
	{Name: FieldEpochYear, Line: 1, Start: 18, End: 20, ref: func(r *ParsedTLE) *string { return &r.EpochYear }},
	{Name: FieldEpochDay, Line: 1, Start: 20, End: 32, ref: func(r *ParsedTLE) *string { return &r.EpochDay }},
	{Name: FieldFirstDerivative, Line: 1, Start: 33, End: 43, ref: func(r *ParsedTLE) *string { return &r.FirstDerivative }},
	{Name: FieldSecondDerivative, Line: 1, Start: 44, End: 52, ref: func(r *ParsedTLE) *string { return &r.SecondDerivative }},
	{Name: FieldBStar, Line: 1, Start: 53, End: 61, ref: func(r *ParsedTLE) *string { return &r.BStar }},
	{Name: FieldEphemerisType, Line: 1, Start: 62, End: 63, ref: func(r *ParsedTLE) *string { return &r.EphemerisType }},
	{Name: FieldElementSetNumber, Line: 1, Start: 64, End: 68, ref: func(r *ParsedTLE) *string { return &r.ElementSetNumber }},
	{Name: FieldChecksum, Line: 1, Start: 68, End: 69, ref: func(r *ParsedTLE) *string { return &r.Checksum1 }},
}

var Line2Fields = []FieldSpec{
	{Name: FieldLineNumber, Line: 2, Start: 0, End: 1, ref: func(r *ParsedTLE) *string { return &r.LineNumber2 }},
	{Name: FieldSatelliteNumber, Line: 2, Start: 2, End: 7, ref: func(r *ParsedTLE) *string { return &r.SatelliteNumber2 }},
	{Name: FieldInclination, Line: 2, Start: 8, End: 16, ref: func(r *ParsedTLE) *string { return &r.Inclination }},
	{Name: FieldRightAscension, Line: 2, Start: 17, End: 25, ref: func(r *ParsedTLE) *string { return &r.RightAscension }},
	{Name: FieldEccentricity, Line: 2, Start: 26, End: 33, ref: func(r *ParsedTLE) *string { return &r.Eccentricity }},
	{Name: FieldArgumentOfPerigee, Line: 2, Start: 34, End: 42, ref: func(r *ParsedTLE) *string { return &r.ArgumentOfPerigee }},
	{Name: FieldMeanAnomaly, Line: 2, Start: 43, End: 51, ref: func(r *ParsedTLE) *string { return &r.MeanAnomaly }},
	{Name: FieldMeanMotion, Line: 2, Start: 52, End: 63, ref: func(r *ParsedTLE) *string { return &r.MeanMotion }},
	{Name: FieldRevolutionNumber, Line: 2, Start: 63, End: 68, ref: func(r *ParsedTLE) *string { return &r.RevolutionNumber }},
	{Name: FieldChecksum, Line: 2, Start: 68, End: 69, ref: func(r *ParsedTLE) *string { return &r.Checksum2 }},
}

// Lookup finds a field by line number and name.
func Lookup(line int, name string) (FieldSpec, bool) {
	fields := Line1Fields
	if line == 2 {
		fields = Line2Fields
	} else if line != 1 {
		return FieldSpec{}, false
	}
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

func mustLookup(line int, name string) FieldSpec {
	f, ok := Lookup(line, name)
	if !ok {
		panic("tle: unknown field " + name)
	}
	return f
}

// Extract returns the trimmed substring of line covered by f. It never
// validates and yields "" when the line is shorter than the field end.
func Extract(line string, f FieldSpec) string {
	if len(line) < f.End {
		return ""
	}
	return strings.TrimSpace(line[f.Start:f.End])
}

// extractRecord fills a record from already validated lines.
func extractRecord(name, line1, line2 string) *ParsedTLE {
	rec := &ParsedTLE{Name: name}
	for _, f := range Line1Fields {
		f.set(rec, Extract(line1, f))
	}
	for _, f := range Line2Fields {
		f.set(rec, Extract(line2, f))
	}
	return rec
}
