package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/tle"
)

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	in := fs.String("in", "", "TLE file, or - for stdin")
	profile := fs.String("profile", "strict", "validation profile")
	profiles := fs.String("profiles", "", "extra profiles (yaml or json)")
	noWarnings := fs.Bool("no-warnings", false, "skip heuristic warnings")
	fs.Parse(args)

	text, err := readInput(*in)
	if err != nil {
		fail("read input", err)
		return
	}
	res := tle.Validate(text, profileOptions(*profile, *profiles, *noWarnings))
	if err := format.WriteJSON(stdout, res, true); err != nil {
		fail("write result", err)
		return
	}
	if !res.Valid {
		exit(3)
	}
}

func parseCmd(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	in := fs.String("in", "", "TLE file, or - for stdin")
	profile := fs.String("profile", "strict", "validation profile")
	profiles := fs.String("profiles", "", "extra profiles (yaml or json)")
	noWarnings := fs.Bool("no-warnings", false, "skip heuristic warnings")
	outFormat := fs.String("format", "json", "output format: json, yaml, csv, text, tle")
	fs.Parse(args)

	f, err := format.Parse(*outFormat)
	if err != nil {
		fail("format", err)
		return
	}
	text, err := readInput(*in)
	if err != nil {
		fail("read input", err)
		return
	}
	rec, err := tle.Parse(text, profileOptions(*profile, *profiles, *noWarnings))
	if err != nil {
		var verr *tle.ValidationError
		if errors.As(err, &verr) {
			for _, iss := range verr.Errors {
				fmt.Fprintf(stdout, "error: %s\n", iss.Error())
			}
			exit(3)
			return
		}
		fail("parse", err)
		return
	}
	if err := format.Encode(stdout, f, []*tle.ParsedTLE{rec}); err != nil {
		fail("write record", err)
	}
}

func recoverCmd(args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	in := fs.String("in", "", "TLE file, or - for stdin")
	profile := fs.String("profile", "strict", "validation profile")
	profiles := fs.String("profiles", "", "extra profiles (yaml or json)")
	noWarnings := fs.Bool("no-warnings", false, "skip heuristic warnings")
	noPartial := fs.Bool("no-partial", false, "do not return a record when critical errors remain")
	fs.Parse(args)

	text, err := readInput(*in)
	if err != nil {
		fail("read input", err)
		return
	}
	opts := profileOptions(*profile, *profiles, *noWarnings)
	if *noPartial {
		opts.IncludePartialResults = false
	}
	res := tle.ParseWithRecovery(text, opts)
	if err := format.WriteJSON(stdout, res, true); err != nil {
		fail("write result", err)
		return
	}
	if !res.Success {
		exit(3)
	}
}

func checksumCmd(args []string) {
	fs := flag.NewFlagSet("checksum", flag.ExitOnError)
	line := fs.String("line", "", "a single TLE data line")
	in := fs.String("in", "", "file whose data lines are checked, or - for stdin")
	fs.Parse(args)

	var lines []string
	if *line != "" {
		lines = []string{*line}
	} else {
		text, err := readInput(*in)
		if err != nil {
			fail("read input", err)
			return
		}
		lines, _ = tle.SplitComments(tle.NormalizeLines(text))
	}
	bad := 0
	for _, l := range lines {
		if !strings.HasPrefix(l, "1 ") && !strings.HasPrefix(l, "2 ") {
			continue
		}
		sum := tle.Checksum(l)
		status := "ok"
		if len(l) != tle.LineLength {
			status = fmt.Sprintf("length %d", len(l))
			bad++
		} else if issues := tle.ValidateChecksum(l, int(l[0]-'0')); len(issues) > 0 {
			status = "mismatch (have " + l[len(l)-1:] + ")"
			bad++
		}
		fmt.Fprintf(stdout, "%s  checksum=%d  %s\n", l, sum, status)
	}
	if bad > 0 {
		exit(3)
	}
}
