package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/propagate"
	"example.com/tlegate/internal/tle"
)

func propagateCmd(args []string) {
	fs := flag.NewFlagSet("propagate", flag.ExitOnError)
	in := fs.String("in", "", "TLE file (- for stdin)")
	dbPath := fs.String("catalog", "", "sqlite catalog to read elements from")
	sat := fs.String("sat", "", "satellite number")
	at := fs.String("at", "", "start time (RFC3339, default element epoch)")
	step := fs.Duration("step", time.Minute, "interval between states")
	count := fs.Int("count", 1, "number of states per satellite")
	fs.Parse(args)

	var recs []*tle.ParsedTLE
	switch {
	case *dbPath != "":
		if *sat == "" {
			fmt.Fprintln(stdout, "required: --sat with --catalog")
			exit(1)
			return
		}
		store, err := catalog.Open(*dbPath)
		if err != nil {
			fail("catalog", err)
			return
		}
		defer store.Close()
		entry, err := store.Latest(context.Background(), *sat)
		if err != nil {
			fail("catalog", err)
			return
		}
		rec, err := entry.Record()
		if err != nil {
			fail("catalog", err)
			return
		}
		recs = append(recs, rec)
	default:
		text, err := readInput(*in)
		if err != nil {
			fail("read input", err)
			return
		}
		opts := tle.DefaultOptions()
		opts.IncludeWarnings = false
		for _, part := range tle.SplitRecords(text) {
			rec, err := tle.Parse(part.Text, opts)
			if err != nil {
				fmt.Fprintf(stdout, "line %d: skipped, %v\n", part.Line, err)
				continue
			}
			if *sat == "" || strings.TrimLeft(rec.SatelliteNumber1, "0") == strings.TrimLeft(*sat, "0") {
				recs = append(recs, rec)
			}
		}
	}
	if len(recs) == 0 {
		fail("propagate", errors.New("no usable element sets"))
		return
	}

	var start time.Time
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fail("--at", err)
			return
		}
		start = t
	}
	var states []propagate.State
	for _, rec := range recs {
		p, err := propagate.New(rec)
		if err != nil {
			fail("propagate "+rec.SatelliteNumber1, err)
			return
		}
		from := start
		if from.IsZero() {
			from = p.Epoch()
		}
		track, err := p.Track(from, *step, *count)
		if err != nil {
			fail("propagate "+rec.SatelliteNumber1, err)
			return
		}
		states = append(states, track...)
	}
	if err := format.WriteJSON(stdout, states, true); err != nil {
		fail("write", err)
	}
}

func catalogCmd(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	dbPath := fs.String("db", "", "sqlite catalog")
	sat := fs.String("sat", "", "satellite number")
	history := fs.Int("history", 0, "list up to n stored element sets for --sat (0 for latest only)")
	fs.Parse(args)

	if *dbPath == "" {
		fmt.Fprintln(stdout, "required: --db")
		exit(1)
		return
	}
	store, err := catalog.Open(*dbPath)
	if err != nil {
		fail("catalog", err)
		return
	}
	defer store.Close()
	ctx := context.Background()

	if *sat == "" {
		sats, err := store.Satellites(ctx)
		if err != nil {
			fail("catalog", err)
			return
		}
		total, err := store.Count(ctx)
		if err != nil {
			fail("catalog", err)
			return
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SATELLITE\tNAME\tEPOCH")
		for _, s := range sats {
			e, err := store.Latest(ctx, s)
			if err != nil {
				fail("catalog", err)
				return
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Satellite, e.Name, e.Epoch.Format(time.RFC3339))
		}
		tw.Flush()
		fmt.Fprintf(stdout, "%d satellite(s), %d element set(s)\n", len(sats), total)
		return
	}

	var v any
	if *history > 0 {
		v, err = store.History(ctx, *sat, *history)
	} else {
		v, err = store.Latest(ctx, *sat)
	}
	if errors.Is(err, catalog.ErrNotFound) {
		fmt.Fprintf(stdout, "satellite %s not in catalog\n", *sat)
		exit(3)
		return
	}
	if err != nil {
		fail("catalog", err)
		return
	}
	if err := format.WriteJSON(stdout, v, true); err != nil {
		fail("write", err)
	}
}
