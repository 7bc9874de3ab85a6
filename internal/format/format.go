// Package format renders parsed TLE records for people and for other tools.
package format

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"example.com/tlegate/internal/tle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CSV  Format = "csv"
	Text Format = "text"
	TLE  Format = "tle"
)

var All = []Format{JSON, YAML, CSV, Text, TLE}

func Parse(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return JSON, nil
	case "yml":
		return YAML, nil
	case "txt":
		return Text, nil
	case JSON, YAML, CSV, Text, TLE:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// ContentType is the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case YAML:
		return "application/yaml"
	case CSV:
		return "text/csv"
	}
	return "text/plain; charset=utf-8"
}

// Encode writes recs to w in format f.
func Encode(w io.Writer, f Format, recs []*tle.ParsedTLE) error {
	switch f {
	case JSON:
		return WriteJSON(w, recs, true)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(recs); err != nil {
			return err
		}
		return enc.Close()
	case CSV:
		return writeCSV(w, recs)
	case Text:
		return writeText(w, recs)
	case TLE:
		for _, rec := range recs {
			s, err := Reconstruct(rec)
			if err != nil {
				return err
			}
			if _, err := io.WriteString(w, s); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown format %q", f)
}

// WriteJSON encodes any value, typically a result, as JSON followed by a
// newline.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var (
		b   []byte
		err error
	)
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// CSVHeader is the column order used by the CSV encoder.
func CSVHeader() []string {
	header := []string{tle.FieldName}
	for _, f := range tle.Line1Fields {
		header = append(header, "line1."+f.Name)
	}
	for _, f := range tle.Line2Fields {
		header = append(header, "line2."+f.Name)
	}
	return header
}

func writeCSV(w io.Writer, recs []*tle.ParsedTLE) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader()); err != nil {
		return err
	}
	for _, rec := range recs {
		row := []string{rec.Name}
		for _, f := range tle.Line1Fields {
			row = append(row, f.Get(rec))
		}
		for _, f := range tle.Line2Fields {
			row = append(row, f.Get(rec))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeText(w io.Writer, recs []*tle.ParsedTLE) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, rec := range recs {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		name := rec.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(tw, "Satellite\t%s\n", name)
		fmt.Fprintf(tw, "Catalog number\t%s%s\n", rec.SatelliteNumber1, rec.Classification)
		fmt.Fprintf(tw, "Intl designator\t%s\n", rec.IntlDesignator())
		if epoch, err := rec.Epoch(); err == nil {
			fmt.Fprintf(tw, "Epoch\t%s\n", epoch.Format("2006-01-02 15:04:05.000 UTC"))
		} else {
			fmt.Fprintf(tw, "Epoch\t%s%s\n", rec.EpochYear, rec.EpochDay)
		}
		fmt.Fprintf(tw, "Inclination\t%s deg\n", rec.Inclination)
		fmt.Fprintf(tw, "RAAN\t%s deg\n", rec.RightAscension)
		if e, err := rec.EccentricityValue(); err == nil {
			fmt.Fprintf(tw, "Eccentricity\t%.7f\n", e)
		}
		fmt.Fprintf(tw, "Arg of perigee\t%s deg\n", rec.ArgumentOfPerigee)
		fmt.Fprintf(tw, "Mean anomaly\t%s deg\n", rec.MeanAnomaly)
		fmt.Fprintf(tw, "Mean motion\t%s rev/day\n", rec.MeanMotion)
		if b, err := rec.BStarValue(); err == nil {
			fmt.Fprintf(tw, "B*\t%.5e\n", b)
		}
		fmt.Fprintf(tw, "Revolution\t%s\n", rec.RevolutionNumber)
		for _, iss := range rec.Warnings {
			fmt.Fprintf(tw, "Warning\t%s: %s\n", iss.Code, iss.Message)
		}
	}
	return tw.Flush()
}
