package gate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
	badSum1  = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2928"
)

func catalog() string {
	return strings.Join([]string{
		"# test catalog",
		"ISS (ZARYA)",
		issLine1,
		issLine2,
		"ISS AGAIN",
		issLine1,
		issLine2,
		"BROKEN",
		badSum1,
		issLine2,
	}, "\n")
}

func newTestEngine(t *testing.T, profile string) *Engine {
	t.Helper()
	p, err := NewRegistry().Get(profile)
	if err != nil {
		t.Fatal(err)
	}
	p.Options.IncludeWarnings = false
	eng := NewEngine(p)
	eng.now = func() time.Time { return time.Unix(0, 0) }
	return eng
}

func TestEngineEvalStrict(t *testing.T) {
	eng := newTestEngine(t, ProfileStrict)
	var streamed []Diagnostic
	eng.OnDiagnostic(func(d Diagnostic) { streamed = append(streamed, d) })
	m := common.NewMetrics()
	eng.SetMetrics(m)

	diags, err := eng.Eval(context.Background(), Input{File: "catalog.tle", Text: catalog()})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if len(streamed) != len(diags) {
		t.Fatalf("streamed %d diagnostics, returned %d", len(streamed), len(diags))
	}
	results := eng.Results()
	if len(results) != 3 {
		t.Fatalf("got %d results", len(results))
	}
	if !results[0].Valid || results[0].Name != "ISS (ZARYA)" || results[0].SourceLine != 2 {
		t.Fatalf("result 0 = %+v", results[0])
	}
	if !results[1].Duplicate {
		t.Fatalf("second record should be a duplicate")
	}
	if results[2].Valid || results[2].Satellite != "25544" {
		t.Fatalf("result 2 = %+v", results[2])
	}

	var dup, sum bool
	for _, d := range diags {
		switch d.Code {
		case tle.CodeDuplicateRecord:
			dup = d.Severity == WARN && d.Record == 1
		case tle.CodeChecksumMismatch:
			sum = d.Severity == ERROR && d.FixSuggested && d.Record == 2
		}
	}
	if !dup || !sum {
		t.Fatalf("diagnostics = %+v", diags)
	}
	if len(eng.Accepted()) != 1 {
		t.Fatalf("Accepted() = %d records", len(eng.Accepted()))
	}

	snap := m.Snapshot()
	if snap.Records != 3 || snap.Rejected != 1 {
		t.Fatalf("metrics = %+v", snap)
	}

	rep := eng.MakeAcceptance()
	if rep.Summary.Records != 3 || rep.Summary.Accepted != 1 || rep.Summary.Rejected != 1 || rep.Summary.Duplicates != 1 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	if rep.Summary.Pass {
		t.Fatalf("report should not pass")
	}
	if len(rep.GateMatrix) != 2 {
		t.Fatalf("gate matrix = %+v", rep.GateMatrix)
	}
}

func TestEngineEvalPermissiveAndRecover(t *testing.T) {
	eng := newTestEngine(t, ProfilePermissive)
	eng.SetConfigValue("batch.dedupe", "false")
	if _, err := eng.Eval(context.Background(), Input{File: "c.tle", Text: catalog()}); err != nil {
		t.Fatal(err)
	}
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Accepted != 3 || rep.Summary.Errors != 0 {
		t.Fatalf("summary = %+v", rep.Summary)
	}

	rec := newTestEngine(t, ProfileRecover)
	rec.SetConcurrency(1)
	if _, err := rec.Eval(context.Background(), Input{File: "c.tle", Text: "ISS\n" + issLine1[:68] + "\n" + issLine2}); err != nil {
		t.Fatal(err)
	}
	res := rec.Results()[0]
	if !res.Valid || res.FinalState != "COMPLETED" || len(res.Recoveries) == 0 {
		t.Fatalf("recover result = %+v", res)
	}
}

func TestEngineDuplicatesAcrossInputs(t *testing.T) {
	eng := newTestEngine(t, ProfileStrict)
	text := issLine1 + "\n" + issLine2
	if _, err := eng.Eval(context.Background(), Input{File: "a.tle", Text: text}); err != nil {
		t.Fatal(err)
	}
	diags, err := eng.Eval(context.Background(), Input{File: "b.tle", Text: "NAME\n" + text})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 1 || diags[0].Code != tle.CodeDuplicateRecord || diags[0].File != "b.tle" {
		t.Fatalf("diags = %+v", diags)
	}
	eng.Reset()
	if len(eng.Results()) != 0 || len(eng.Diagnostics()) != 0 {
		t.Fatalf("Reset left state behind")
	}
}

func TestWriteDiagnosticsNDJSON(t *testing.T) {
	eng := newTestEngine(t, ProfileStrict)
	if _, err := eng.Eval(context.Background(), Input{File: "c.tle", Text: catalog()}); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(t.TempDir(), "diagnostics.jsonl")
	if err := eng.WriteDiagnosticsNDJSON(outPath); err != nil {
		t.Fatalf("WriteDiagnosticsNDJSON failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	lines := bytesTrimSplit(data)
	if len(lines) != len(eng.Diagnostics()) {
		t.Fatalf("expected %d lines, got %d", len(eng.Diagnostics()), len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("unmarshal first line failed: %v", err)
	}
	if first["file"] != "c.tle" || first["code"] == nil || first["severity"] == nil {
		t.Fatalf("first diagnostic = %v", first)
	}
}

func TestEvalCancelled(t *testing.T) {
	eng := newTestEngine(t, ProfileStrict)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Eval(ctx, Input{File: "c.tle", Text: catalog()}); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}

func bytesTrimSplit(in []byte) [][]byte {
	in = bytes.TrimSpace(in)
	if len(in) == 0 {
		return nil
	}
	parts := bytes.Split(in, []byte{'\n'})
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		p = bytes.TrimSpace(p)
		if len(p) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}
