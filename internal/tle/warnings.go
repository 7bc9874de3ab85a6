package tle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	StaleAfter           = 30 * 24 * time.Hour
	HighEccentricity     = 0.25
	LowMeanMotion        = 1.0
	RevolutionRolloverAt = 90000
)

// Heuristic inspects a record and returns advisory warnings. Heuristics
// never fail a record.
type Heuristic func(rec *ParsedTLE, now time.Time) []Issue

// Heuristics lists the checks run by DetectWarnings, in order.
var Heuristics = []Heuristic{
	checkClassified,
	checkEpochYear,
	checkStaleEpoch,
	checkEccentricity,
	checkMeanMotion,
	checkRevolutionNumber,
	checkNearZeroDrag,
	checkNegativeDecay,
	checkEphemerisType,
}

// DetectWarnings runs every heuristic against rec. now anchors the stale
// epoch check.
func DetectWarnings(rec *ParsedTLE, now time.Time) []Issue {
	if rec == nil {
		return nil
	}
	var out []Issue
	for _, h := range Heuristics {
		out = append(out, h(rec, now)...)
	}
	return out
}

func checkClassified(rec *ParsedTLE, _ time.Time) []Issue {
	if rec.Classification != "C" && rec.Classification != "S" {
		return nil
	}
	return []Issue{newWarning(CodeClassifiedData, 1, FieldClassification,
		fmt.Sprintf("record is marked classified (%s)", rec.Classification))}
}

func checkEpochYear(rec *ParsedTLE, _ time.Time) []Issue {
	yy, err := strconv.Atoi(rec.EpochYear)
	if err != nil {
		return nil
	}
	full := FullYear(yy)
	if full >= 2000 {
		return nil
	}
	iss := newWarning(CodeDeprecatedEpochYear, 1, FieldEpochYear,
		fmt.Sprintf("epoch year %s resolves to %d", rec.EpochYear, full))
	iss.Actual = full
	return []Issue{iss}
}

func checkStaleEpoch(rec *ParsedTLE, now time.Time) []Issue {
	epoch, err := rec.Epoch()
	if err != nil {
		return nil
	}
	age := now.Sub(epoch)
	if age <= StaleAfter {
		return nil
	}
	days := int(age / (24 * time.Hour))
	iss := newWarning(CodeStaleTLE, 1, FieldEpochDay,
		fmt.Sprintf("epoch %s is %d days old", epoch.Format(time.RFC3339), days))
	iss.Actual = days
	return []Issue{iss}
}

func checkEccentricity(rec *ParsedTLE, _ time.Time) []Issue {
	e, err := rec.EccentricityValue()
	if err != nil || e <= HighEccentricity {
		return nil
	}
	iss := newWarning(CodeHighEccentricity, 2, FieldEccentricity,
		fmt.Sprintf("eccentricity %.7f exceeds %.2f", e, HighEccentricity))
	iss.Actual = e
	return []Issue{iss}
}

func checkMeanMotion(rec *ParsedTLE, _ time.Time) []Issue {
	mm, err := rec.MeanMotionValue()
	if err != nil || mm >= LowMeanMotion {
		return nil
	}
	iss := newWarning(CodeLowMeanMotion, 2, FieldMeanMotion,
		fmt.Sprintf("mean motion %.8f rev/day is below %.1f", mm, LowMeanMotion))
	iss.Actual = mm
	return []Issue{iss}
}

func checkRevolutionNumber(rec *ParsedTLE, _ time.Time) []Issue {
	n, err := strconv.Atoi(rec.RevolutionNumber)
	if err != nil || n <= RevolutionRolloverAt {
		return nil
	}
	iss := newWarning(CodeRevolutionRollover, 2, FieldRevolutionNumber,
		fmt.Sprintf("revolution number %d is close to the 99999 rollover", n))
	iss.Actual = n
	return []Issue{iss}
}

var zeroDrag = map[string]bool{"00000-0": true, "00000+0": true, "00000 0": true}

func checkNearZeroDrag(rec *ParsedTLE, _ time.Time) []Issue {
	b := strings.TrimLeft(rec.BStar, "+-")
	if !zeroDrag[b] {
		return nil
	}
	return []Issue{newWarning(CodeNearZeroDrag, 1, FieldBStar,
		fmt.Sprintf("drag term %q is zero", rec.BStar))}
}

func checkNegativeDecay(rec *ParsedTLE, _ time.Time) []Issue {
	if !strings.HasPrefix(rec.FirstDerivative, "-") {
		return nil
	}
	v, err := rec.FirstDerivativeValue()
	if err != nil || v >= 0 {
		return nil
	}
	iss := newWarning(CodeNegativeDecay, 1, FieldFirstDerivative,
		fmt.Sprintf("first derivative of mean motion is negative (%s)", rec.FirstDerivative))
	iss.Actual = v
	return []Issue{iss}
}

func checkEphemerisType(rec *ParsedTLE, _ time.Time) []Issue {
	if rec.EphemerisType == "" || rec.EphemerisType == "0" {
		return nil
	}
	iss := newWarning(CodeNonStandardEphemeris, 1, FieldEphemerisType,
		fmt.Sprintf("ephemeris type %s is not the standard SGP4 type 0", rec.EphemerisType))
	iss.Actual = rec.EphemerisType
	return []Issue{iss}
}
