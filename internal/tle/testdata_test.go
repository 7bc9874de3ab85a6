package tle

import (
	"strings"
	"testing"
	"time"
)

const (
	issName  = "ISS (ZARYA)"
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"

	// line 2 of the ISS record carrying catalog number 25545, checksum fixed.
	issLine2Other = "2 25545  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563538"
	// line 1 with classification X, checksum unchanged.
	issLine1BadClass = "1 25544X 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine1BadSum   = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2928"
	// inclination 190 degrees.
	issLine2BadIncl = "2 25544 190.6416 247.4627 0006703 130.5360 325.0288 15.72125391563531"

	// a record that trips every advisory heuristic except negative decay.
	oddLine1 = "1 25544C 98067A   98264.51782528  .00002182  00000-0  00000-0 4  2920"
	oddLine2 = "2 25544  51.6416 247.4627 3006703 130.5360 325.0288  0.72125391953537"
)

var issEpochNow = time.Date(2008, 10, 1, 0, 0, 0, 0, time.UTC)

func join(lines ...string) string {
	return strings.Join(lines, "\n")
}

func withNow(t *testing.T, now time.Time) {
	t.Helper()
	prev := nowFunc
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = prev })
}

func codes(issues []Issue) []Code {
	out := make([]Code, 0, len(issues))
	for _, iss := range issues {
		out = append(out, iss.Code)
	}
	return out
}

func hasCode(issues []Issue, code Code) bool {
	return countCode(issues, code) > 0
}

func countCode(issues []Issue, code Code) int {
	n := 0
	for _, iss := range issues {
		if iss.Code == code {
			n++
		}
	}
	return n
}
