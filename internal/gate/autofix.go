package gate

import (
	"context"
	"fmt"
	"strings"

	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/tle"
)

// FixResult describes what autofix did with one record.
type FixResult struct {
	Record     int      `json:"record"`
	Satellite  string   `json:"satellite,omitempty"`
	Changed    bool     `json:"changed"`
	ValidAfter bool     `json:"validAfter"`
	Skipped    string   `json:"skipped,omitempty"`
	Before     []string `json:"before,omitempty"`
	After      []string `json:"after,omitempty"`
}

// Autofix recovers every record of in and rebuilds its data lines with
// fresh checksums. Records the recovery parser cannot salvage are copied
// through unchanged. Comment lines are kept where they were, whatever the
// profile's IncludeComments setting. Every recovery step and rewrite is appended to audit
// when it is non-nil.
func Autofix(ctx context.Context, in Input, opts tle.Options, workers int, audit *common.AuditLog) (string, []FixResult, error) {
	parts := tle.SplitRecords(in.Text)
	if len(parts) == 0 {
		_, comments := tle.SplitComments(tle.NormalizeLines(in.Text))
		if len(comments) == 0 {
			return "", nil, nil
		}
		return strings.Join(comments, "\n") + "\n", nil, nil
	}
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	recovered, err := tle.RecoverBatch(ctx, texts, opts, workers)
	if err != nil {
		return "", nil, err
	}

	var (
		out     strings.Builder
		results []FixResult
		entries []common.AuditEntry
	)
	for i, part := range parts {
		r := recovered[i]
		fr := FixResult{Record: i}
		before := dataLines(part.Text)
		for _, rr := range r.Recoveries {
			entries = append(entries, common.AuditEntry{
				File:        in.File,
				Record:      i,
				Action:      string(rr.Action),
				State:       rr.State.String(),
				Description: rr.Description,
				Ts:          rr.Timestamp,
			})
		}
		if r.Record == nil {
			fr.Skipped = fmt.Sprintf("unrecoverable (%s)", r.FinalState)
			out.WriteString(part.Text + "\n")
			results = append(results, fr)
			continue
		}
		rec := *r.Record
		rec.Warnings, rec.Comments = nil, nil
		fr.Satellite = rec.SatelliteNumber1
		text, err := format.Reconstruct(&rec)
		if err != nil {
			fr.Skipped = err.Error()
			out.WriteString(part.Text + "\n")
			results = append(results, fr)
			continue
		}
		l1, l2, _ := format.Lines(&rec)
		after := []string{l1, l2}
		fr.Changed = len(before) != 2 || before[0] != l1 || before[1] != l2
		fr.ValidAfter = tle.Validate(text, opts).Valid
		if fr.Changed {
			fr.Before, fr.After = before, after
			entries = append(entries, common.AuditEntry{
				File:        in.File,
				Record:      i,
				Satellite:   fr.Satellite,
				Action:      "RECONSTRUCT",
				Description: "data lines rebuilt with recomputed checksums",
				Before:      before,
				After:       after,
			})
		}
		leading, trailing := partComments(part.Text)
		for _, c := range leading {
			out.WriteString(c + "\n")
		}
		out.WriteString(text)
		for _, c := range trailing {
			out.WriteString(c + "\n")
		}
		results = append(results, fr)
	}
	if audit != nil {
		for i := range entries {
			entries[i].Satellite = satelliteFor(results, entries[i])
		}
		if err := audit.Append(entries...); err != nil {
			return out.String(), results, fmt.Errorf("audit log: %w", err)
		}
	}
	return out.String(), results, nil
}

// partComments returns the comment lines before and after the data lines of
// a split record.
func partComments(text string) (leading, trailing []string) {
	seenData := false
	for _, line := range tle.NormalizeLines(text) {
		switch {
		case !strings.HasPrefix(line, "#"):
			seenData = true
		case seenData:
			trailing = append(trailing, line)
		default:
			leading = append(leading, line)
		}
	}
	return leading, trailing
}

func satelliteFor(results []FixResult, e common.AuditEntry) string {
	if e.Satellite != "" || e.Record >= len(results) {
		return e.Satellite
	}
	return results[e.Record].Satellite
}
