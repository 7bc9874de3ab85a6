package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"

	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/tle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

func severityOf(s tle.Severity) Severity {
	switch s {
	case tle.SeverityError:
		return ERROR
	case tle.SeverityWarning:
		return WARN
	}
	return INFO
}

type Diagnostic struct {
	Ts           time.Time `json:"ts"`
	File         string    `json:"file"`
	Record       int       `json:"record"`
	SourceLine   int       `json:"sourceLine,omitempty"`
	DataLine     int       `json:"dataLine,omitempty"`
	Satellite    string    `json:"satellite,omitempty"`
	Name         string    `json:"name,omitempty"`
	Code         tle.Code  `json:"code"`
	Severity     Severity  `json:"severity"`
	Field        string    `json:"field,omitempty"`
	Message      string    `json:"message"`
	FixSuggested bool      `json:"fixSuggested"`
	FixApplied   bool      `json:"fixApplied"`
}

// RecordResult is the outcome for one record of an evaluated input.
type RecordResult struct {
	Index      int                  `json:"index"`
	SourceLine int                  `json:"sourceLine"`
	Name       string               `json:"name,omitempty"`
	Satellite  string               `json:"satellite,omitempty"`
	Valid      bool                 `json:"valid"`
	Duplicate  bool                 `json:"duplicate,omitempty"`
	Digest     string               `json:"digest,omitempty"`
	Record     *tle.ParsedTLE       `json:"record,omitempty"`
	FinalState string               `json:"finalState,omitempty"`
	Recoveries []tle.RecoveryRecord `json:"recoveries,omitempty"`
}

type GateRow struct {
	Code     tle.Code `json:"code"`
	Severity Severity `json:"severity"`
	Count    int      `json:"count"`
}

type AcceptanceReport struct {
	Summary struct {
		Records    int  `json:"records"`
		Accepted   int  `json:"accepted"`
		Rejected   int  `json:"rejected"`
		Duplicates int  `json:"duplicates"`
		Errors     int  `json:"errors"`
		Warnings   int  `json:"warnings"`
		Pass       bool `json:"pass"`
	} `json:"summary"`
	Profile    string       `json:"profile"`
	GateMatrix []GateRow    `json:"gateMatrix"`
	Findings   []Diagnostic `json:"findings,omitempty"`
}

// Input is one file or request body holding any number of records.
type Input struct {
	File string
	Text string
}

type Engine struct {
	profile     Profile
	workers     int
	dedupe      bool
	includeInfo bool
	onDiag      func(Diagnostic)
	metrics     *common.Metrics
	now         func() time.Time

	diagnostics []Diagnostic
	results     []RecordResult
}

func NewEngine(p Profile) *Engine {
	return &Engine{
		profile:     p,
		dedupe:      true,
		includeInfo: true,
		now:         time.Now,
	}
}

func (e *Engine) Profile() Profile {
	return e.profile
}

// SetConcurrency bounds the number of records evaluated at once. Zero or
// less means GOMAXPROCS.
func (e *Engine) SetConcurrency(n int) {
	e.workers = n
}

// OnDiagnostic registers a callback invoked for every diagnostic, in record
// order, as Eval produces them.
func (e *Engine) OnDiagnostic(fn func(Diagnostic)) {
	e.onDiag = fn
}

func (e *Engine) SetMetrics(m *common.Metrics) {
	e.metrics = m
}

func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "batch.dedupe":
		if b, ok := boolValue(value); ok {
			e.dedupe = b
		}
	case "diag.include_info":
		if b, ok := boolValue(value); ok {
			e.includeInfo = b
		}
	case "batch.workers":
		switch v := value.(type) {
		case int:
			e.workers = v
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				e.workers = n
			}
		}
	}
}

func boolValue(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	case fmt.Stringer:
		b, err := strconv.ParseBool(v.String())
		return b, err == nil
	}
	return false, false
}

// Eval splits every input into records, checks them with the profile's
// entry point and collects diagnostics. Results accumulate across inputs
// until Reset.
func (e *Engine) Eval(ctx context.Context, inputs ...Input) ([]Diagnostic, error) {
	if e == nil {
		return nil, errors.New("nil engine")
	}
	seen := make(map[uint64]int)
	for _, r := range e.results {
		if r.Digest != "" {
			if n, err := strconv.ParseUint(r.Digest, 16, 64); err == nil {
				seen[n] = r.Index
			}
		}
	}
	var all []Diagnostic
	for _, in := range inputs {
		diags, err := e.evalInput(ctx, in, seen)
		all = append(all, diags...)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

func (e *Engine) evalInput(ctx context.Context, in Input, seen map[uint64]int) ([]Diagnostic, error) {
	parts := tle.SplitRecords(in.Text)
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	if e.metrics != nil {
		e.metrics.SetTotalRecords(int64(len(e.results) + len(parts)))
	}

	opts := e.profile.Options
	var (
		validated []tle.ValidationResult
		recovered []tle.RecoveryResult
		err       error
	)
	if e.profile.Recover {
		recovered, err = tle.RecoverBatch(ctx, texts, opts, e.workers)
	} else {
		validated, err = tle.ValidateBatch(ctx, texts, opts, e.workers)
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", in.File, err)
	}

	var diags []Diagnostic
	for i, part := range parts {
		res := RecordResult{Index: len(e.results), SourceLine: part.Line, Name: part.Name}
		var errs, warns []tle.Issue
		if e.profile.Recover {
			r := recovered[i]
			res.Valid = r.Success
			res.Record = r.Record
			res.FinalState = r.FinalState.String()
			res.Recoveries = r.Recoveries
			errs, warns = r.Errors, r.Warnings
		} else {
			r := validated[i]
			res.Valid = r.Valid
			res.Record = r.Record
			errs, warns = r.Errors, r.Warnings
		}
		data := dataLines(part.Text)
		if res.Record != nil {
			res.Satellite = res.Record.SatelliteNumber1
			if res.Record.Name != "" {
				res.Name = res.Record.Name
			}
		} else if len(data) > 0 {
			res.Satellite = tle.Extract(data[0], satelliteField)
		}

		var found []Diagnostic
		for _, iss := range append(append([]tle.Issue{}, errs...), warns...) {
			found = append(found, e.diagnostic(in.File, res, iss))
		}
		if digest, ok := recordDigest(data); ok {
			res.Digest = fmt.Sprintf("%016x", digest)
			if first, dup := seen[digest]; dup && e.dedupe {
				res.Duplicate = true
				found = append(found, e.diagnostic(in.File, res, tle.Issue{
					Code:     tle.CodeDuplicateRecord,
					Severity: tle.SeverityWarning,
					Message:  fmt.Sprintf("same data lines as record %d", first),
				}))
			} else if !dup {
				seen[digest] = res.Index
			}
		}
		if !e.includeInfo {
			found = dropInfo(found)
		}

		if e.metrics != nil {
			e.metrics.AddRecord(int64(len(part.Text)), res.Valid)
			if len(res.Recoveries) > 0 {
				e.metrics.IncRecovered()
			}
		}
		e.results = append(e.results, res)
		e.diagnostics = append(e.diagnostics, found...)
		diags = append(diags, found...)
		if e.onDiag != nil {
			for _, d := range found {
				e.onDiag(d)
			}
		}
	}
	return diags, nil
}

func (e *Engine) diagnostic(file string, res RecordResult, iss tle.Issue) Diagnostic {
	return Diagnostic{
		Ts:           e.now().UTC(),
		File:         file,
		Record:       res.Index,
		SourceLine:   res.SourceLine,
		DataLine:     iss.Line,
		Satellite:    res.Satellite,
		Name:         res.Name,
		Code:         iss.Code,
		Severity:     severityOf(iss.Severity),
		Field:        iss.Field,
		Message:      iss.Message,
		FixSuggested: Fixable(iss.Code),
	}
}

func dropInfo(diags []Diagnostic) []Diagnostic {
	out := diags[:0]
	for _, d := range diags {
		if d.Severity != INFO {
			out = append(out, d)
		}
	}
	return out
}

// Fixable reports whether autofix can repair an issue by rebuilding the
// data lines.
func Fixable(code tle.Code) bool {
	switch code {
	case tle.CodeChecksumMismatch, tle.CodeInvalidChecksumChar, tle.CodeInvalidLineLength:
		return true
	}
	return false
}

var satelliteField, _ = tle.Lookup(1, tle.FieldSatelliteNumber)

// dataLines returns the last two non-comment lines of a record text, which
// are its data lines when the record is well formed.
func dataLines(text string) []string {
	data, _ := tle.SplitComments(tle.NormalizeLines(text))
	if len(data) > 2 {
		data = data[len(data)-2:]
	}
	return data
}

func recordDigest(data []string) (uint64, bool) {
	if len(data) < 2 {
		return 0, false
	}
	return xxh3.HashString(data[0] + "\n" + data[1]), true
}

func (e *Engine) Diagnostics() []Diagnostic {
	return e.diagnostics
}

func (e *Engine) Results() []RecordResult {
	return e.results
}

// Accepted returns the records that passed, without duplicates.
func (e *Engine) Accepted() []*tle.ParsedTLE {
	var out []*tle.ParsedTLE
	for _, r := range e.results {
		if r.Valid && !r.Duplicate && r.Record != nil {
			out = append(out, r.Record)
		}
	}
	return out
}

func (e *Engine) Reset() {
	e.diagnostics = nil
	e.results = nil
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := WriteNDJSON(w, e.diagnostics); err != nil {
		return err
	}
	return w.Flush()
}

func WriteNDJSON(w io.Writer, diags []Diagnostic) error {
	for _, d := range diags {
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	rep.Profile = e.profile.ProfileId
	counts := map[tle.Code]*GateRow{}
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			rep.Summary.Errors++
		case WARN:
			rep.Summary.Warnings++
		}
		row, ok := counts[d.Code]
		if !ok {
			row = &GateRow{Code: d.Code, Severity: d.Severity}
			counts[d.Code] = row
		}
		if d.Severity == ERROR {
			row.Severity = ERROR
		}
		row.Count++
	}
	for _, r := range e.results {
		rep.Summary.Records++
		switch {
		case r.Duplicate:
			rep.Summary.Duplicates++
		case r.Valid:
			rep.Summary.Accepted++
		default:
			rep.Summary.Rejected++
		}
	}
	rep.GateMatrix = make([]GateRow, 0, len(counts))
	for _, row := range counts {
		rep.GateMatrix = append(rep.GateMatrix, *row)
	}
	sort.Slice(rep.GateMatrix, func(i, j int) bool {
		a, b := rep.GateMatrix[i], rep.GateMatrix[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return strings.Compare(string(a.Code), string(b.Code)) < 0
	})
	rep.Summary.Pass = rep.Summary.Rejected == 0 && rep.Summary.Records > 0
	rep.Findings = e.diagnostics
	return rep
}
