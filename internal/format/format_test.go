package format

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"example.com/tlegate/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
	badSum1  = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2928"
)

func parse(t *testing.T, text string) *tle.ParsedTLE {
	t.Helper()
	opts := tle.DefaultOptions()
	opts.Validate = false
	rec, err := tle.Parse(text, opts)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return rec
}

func TestLinesRoundTrip(t *testing.T) {
	rec := parse(t, issLine1+"\n"+issLine2)
	l1, l2, err := Lines(rec)
	if err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if l1 != issLine1 {
		t.Fatalf("line1:\n got %q\nwant %q", l1, issLine1)
	}
	if l2 != issLine2 {
		t.Fatalf("line2:\n got %q\nwant %q", l2, issLine2)
	}
}

func TestReconstructRepairsChecksum(t *testing.T) {
	rec := parse(t, "ISS (ZARYA)\n"+badSum1+"\n"+issLine2)
	out, err := Reconstruct(rec)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
	if res := tle.Validate(out, tle.DefaultOptions()); !res.Valid {
		t.Fatalf("reconstructed text does not validate: %v", res.Errors)
	}
}

func TestLinesRejectsWideField(t *testing.T) {
	rec := parse(t, issLine1+"\n"+issLine2)
	rec.SatelliteNumber1 = "1234567"
	if _, _, err := Lines(rec); err == nil {
		t.Fatalf("expected error for wide field")
	}
	if _, _, err := Lines(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
}

func TestEncodeFormats(t *testing.T) {
	rec := parse(t, "ISS (ZARYA)\n"+issLine1+"\n"+issLine2)
	recs := []*tle.ParsedTLE{rec}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, JSON, recs); err != nil {
			t.Fatal(err)
		}
		var back []*tle.ParsedTLE
		if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatal(err)
		}
		if len(back) != 1 || back[0].BStar != "-11606-4" || back[0].Name != "ISS (ZARYA)" {
			t.Fatalf("decoded %+v", back)
		}
	})
	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, YAML, recs); err != nil {
			t.Fatal(err)
		}
		var back []map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
			t.Fatal(err)
		}
		if back[0]["meanMotion"] != "15.72125391" {
			t.Fatalf("meanMotion = %v", back[0]["meanMotion"])
		}
	})
	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, CSV, recs); err != nil {
			t.Fatal(err)
		}
		rows, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 2 || len(rows[0]) != len(rows[1]) || len(rows[0]) != len(CSVHeader()) {
			t.Fatalf("rows = %v", rows)
		}
		if rows[1][0] != "ISS (ZARYA)" || rows[1][2] != "25544" {
			t.Fatalf("row = %v", rows[1])
		}
	})
	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, Text, recs); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{"ISS (ZARYA)", "98067A", "2008-09-20", "0.0006703"} {
			if !strings.Contains(out, want) {
				t.Fatalf("text output missing %q:\n%s", want, out)
			}
		}
	})
	t.Run("tle", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Encode(&buf, TLE, recs); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n" {
			t.Fatalf("tle output = %q", buf.String())
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": JSON, "JSON": JSON, "yml": YAML, "csv": CSV, "txt": Text, " tle ": TLE}
	for in, want := range tests {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Fatalf("Parse(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := Parse("xml"); err == nil {
		t.Fatalf("expected error for xml")
	}
}
