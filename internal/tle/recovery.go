package tle

import (
	"fmt"
	"strings"
	"time"
)

type State uint8

const (
	StateInitial State = iota
	StateDetectingFormat
	StateParsingName
	StateParsingLine1
	StateParsingLine2
	StateValidating
	StateCompleted
	StateError
)

var stateNames = [...]string{
	StateInitial:         "INITIAL",
	StateDetectingFormat: "DETECTING_FORMAT",
	StateParsingName:     "PARSING_NAME",
	StateParsingLine1:    "PARSING_LINE1",
	StateParsingLine2:    "PARSING_LINE2",
	StateValidating:      "VALIDATING",
	StateCompleted:       "COMPLETED",
	StateError:           "ERROR",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateError
}

type Action string

const (
	ActionContinue   Action = "CONTINUE"
	ActionSkipField  Action = "SKIP_FIELD"
	ActionUseDefault Action = "USE_DEFAULT"
	ActionAttemptFix Action = "ATTEMPT_FIX"
	ActionAbort      Action = "ABORT"
)

// RecoveryRecord is one entry of the audit trail kept by ParseWithRecovery.
type RecoveryRecord struct {
	Action      Action    `json:"action" yaml:"action"`
	Description string    `json:"description" yaml:"description"`
	State       State     `json:"state" yaml:"state"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

type RecoveryResult struct {
	Success    bool             `json:"success"`
	Record     *ParsedTLE       `json:"record,omitempty"`
	Errors     []Issue          `json:"errors"`
	Warnings   []Issue          `json:"warnings"`
	Recoveries []RecoveryRecord `json:"recoveryActions"`
	FinalState State            `json:"state"`
}

// maxSteps bounds the transition loop.
const maxSteps = 100

// transitions lists the allowed successors of each non-terminal state.
var transitions = map[State][]State{
	StateInitial:         {StateDetectingFormat, StateError},
	StateDetectingFormat: {StateParsingName, StateParsingLine1, StateError},
	StateParsingName:     {StateParsingLine1, StateError},
	StateParsingLine1:    {StateParsingLine2, StateError},
	StateParsingLine2:    {StateValidating, StateError},
	StateValidating:      {StateCompleted, StateError},
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type parserContext struct {
	text     string
	opts     Options
	now      time.Time
	state    State
	lines    []string
	comments []string

	nameIdx, line1Idx, line2Idx int

	rec      *ParsedTLE
	errors   []Issue
	warnings []Issue
	ledger   []RecoveryRecord
	critical bool

	// stepFn and allow are step and allowed outside of tests.
	stepFn func(State, *parserContext) State
	allow  func(from, to State) bool
}

func (c *parserContext) record(a Action, format string, args ...any) {
	c.ledger = append(c.ledger, RecoveryRecord{
		Action:      a,
		Description: fmt.Sprintf(format, args...),
		State:       c.state,
		Timestamp:   c.now,
	})
}

func (c *parserContext) fail(iss Issue, critical bool) {
	c.errors = append(c.errors, iss)
	if critical {
		c.critical = true
	}
}

func (c *parserContext) warn(iss Issue) {
	c.warnings = append(c.warnings, iss.asWarning())
}

// fieldIssue files a field-level finding as an error, or as a warning when
// the options downgrade it.
func (c *parserContext) fieldIssue(iss Issue) {
	if downgradable(iss.Code, c.opts) {
		c.warn(iss)
		return
	}
	c.fail(iss, false)
}

func (c *parserContext) line(idx int) string {
	if idx < 0 || idx >= len(c.lines) {
		return ""
	}
	return c.lines[idx]
}

// ParseWithRecovery parses text on a best-effort basis. It never panics on
// malformed input: every assumption or repair lands in Recoveries and every
// finding in Errors or Warnings.
func ParseWithRecovery(text string, opts Options) RecoveryResult {
	ctx := newParserContext(text, opts)
	ctx.run()
	return ctx.result()
}

func newParserContext(text string, opts Options) *parserContext {
	return &parserContext{
		text:     text,
		opts:     opts,
		now:      nowFunc(),
		state:    StateInitial,
		nameIdx:  -1,
		line1Idx: -1,
		line2Idx: -1,
		errors:   []Issue{},
		warnings: []Issue{},
		ledger:   []RecoveryRecord{},
		stepFn:   step,
		allow:    allowed,
	}
}

func (c *parserContext) run() {
	for i := 0; !c.state.terminal(); i++ {
		if i >= maxSteps {
			c.fail(newError(CodeStateMachineLoop, 0, "",
				fmt.Sprintf("state machine exceeded %d steps in %s", maxSteps, c.state)), true)
			c.record(ActionAbort, "step limit reached")
			c.state = StateError
			return
		}
		next := c.stepFn(c.state, c)
		if !c.allow(c.state, next) {
			c.fail(newError(CodeInvalidStateTransition, 0, "",
				fmt.Sprintf("transition %s -> %s is not allowed", c.state, next)), true)
			c.record(ActionAbort, "invalid transition to %s", next)
			c.state = StateError
			return
		}
		c.state = next
	}
}

func (c *parserContext) result() RecoveryResult {
	res := RecoveryResult{
		Success:    c.state == StateCompleted,
		Errors:     c.errors,
		Warnings:   c.warnings,
		Recoveries: c.ledger,
		FinalState: c.state,
	}
	if c.rec != nil && (res.Success || c.opts.IncludePartialResults) {
		res.Record = c.rec
	}
	return res
}

// step performs the work of state and returns the next one.
func step(state State, c *parserContext) State {
	switch state {
	case StateInitial:
		return c.initial()
	case StateDetectingFormat:
		return c.detectFormat()
	case StateParsingName:
		return c.parseName()
	case StateParsingLine1:
		c.parseLine(1, c.line(c.line1Idx), Line1Fields)
		return StateParsingLine2
	case StateParsingLine2:
		c.parseLine(2, c.line(c.line2Idx), Line2Fields)
		return StateValidating
	case StateValidating:
		return c.validate()
	}
	return StateError
}

func (c *parserContext) initial() State {
	if strings.TrimSpace(c.text) == "" {
		c.fail(newError(CodeEmptyInput, 0, "", "input is empty"), true)
		c.record(ActionAbort, "nothing to parse")
		return StateError
	}
	c.lines, c.comments = SplitComments(NormalizeLines(c.text))
	return StateDetectingFormat
}

func (c *parserContext) detectFormat() State {
	n := len(c.lines)
	switch {
	case n < 2:
		iss := newError(CodeInvalidLineCount, 0, "",
			fmt.Sprintf("expected 2 or 3 data lines, got %d", n))
		iss.Expected = "2 or 3"
		iss.Actual = n
		c.fail(iss, true)
		c.record(ActionAbort, "need at least two data lines, got %d", n)
		return StateError
	case n == 2:
		c.line1Idx, c.line2Idx = 0, 1
	case n == 3:
		c.nameIdx, c.line1Idx, c.line2Idx = 0, 1, 2
	default:
		c.detectFromExcess()
	}
	c.rec = &ParsedTLE{}
	if c.nameIdx >= 0 {
		return StateParsingName
	}
	return StateParsingLine1
}

// detectFromExcess looks for a unique line 1 and a unique line 2 among more
// than three lines. The name is taken to be the line just before line 1.
func (c *parserContext) detectFromExcess() {
	one, two := -1, -1
	ones, twos := 0, 0
	for i, l := range c.lines {
		switch l[0] {
		case '1':
			one = i
			ones++
		case '2':
			two = i
			twos++
		}
	}
	n := len(c.lines)
	if ones == 1 && twos == 1 {
		c.line1Idx, c.line2Idx = one, two
		if one > 0 && one-1 != two {
			c.nameIdx = one - 1
		}
		iss := newWarning(CodeInvalidLineCount, 0, "",
			fmt.Sprintf("found %d data lines, picked line 1 at %d and line 2 at %d", n, one+1, two+1))
		iss.Actual = n
		c.warn(iss)
		c.record(ActionAttemptFix, "selected lines %d and %d out of %d", one+1, two+1, n)
		return
	}
	c.nameIdx, c.line1Idx, c.line2Idx = 0, 1, 2
	iss := newError(CodeInvalidLineCount, 0, "",
		fmt.Sprintf("found %d data lines and no unique line 1/line 2 pair", n))
	iss.Expected = "2 or 3"
	iss.Actual = n
	c.fail(iss, false)
	c.record(ActionAttemptFix, "falling back to the first three of %d lines", n)
}

func (c *parserContext) parseName() State {
	name := trimNamePrefix(c.line(c.nameIdx))
	c.rec.Name = name
	for _, iss := range validateName(name) {
		c.warn(iss)
	}
	return StateParsingLine1
}

func (c *parserContext) parseLine(n int, line string, fields []FieldSpec) {
	if len(line) != LineLength {
		iss := newWarning(CodeInvalidLineLength, n, "",
			fmt.Sprintf("line %d must be %d characters, got %d", n, LineLength, len(line)))
		iss.Expected = LineLength
		iss.Actual = len(line)
		c.warnings = append(c.warnings, iss)
		c.record(ActionContinue, "line %d has length %d, extracting what is present", n, len(line))
	} else {
		for _, iss := range ValidateChecksum(line, n) {
			c.fieldIssue(iss)
			c.record(ActionContinue, "line %d: %s", n, iss.Code)
		}
	}
	want := byte('0' + n)
	if line == "" || line[0] != want {
		got := ""
		if line != "" {
			got = line[:1]
		}
		iss := newError(CodeInvalidLineNumber, n, FieldLineNumber,
			fmt.Sprintf("line %d must start with %q, got %q", n, string(want), got))
		iss.Expected = string(want)
		iss.Actual = got
		c.fail(iss, true)
		c.record(ActionContinue, "line %d has the wrong line number", n)
	}
	for _, f := range fields {
		c.parseFieldSafe(f, line)
	}
}

// parseFieldSafe extracts f from line and records a default when the line
// is too short to hold it.
func (c *parserContext) parseFieldSafe(f FieldSpec, line string) {
	switch {
	case len(line) >= f.End:
		f.set(c.rec, Extract(line, f))
	case len(line) > f.Start:
		f.set(c.rec, strings.TrimSpace(line[f.Start:]))
		c.warn(newWarning(CodePartialField, f.Line, f.Name,
			fmt.Sprintf("%s is truncated at column %d", f.Name, len(line))))
		c.record(ActionUseDefault, "kept partial %s on line %d", f.Name, f.Line)
	default:
		f.set(c.rec, "")
		c.warn(newWarning(CodeMissingField, f.Line, f.Name,
			fmt.Sprintf("%s is missing", f.Name)))
		c.record(ActionUseDefault, "left %s empty on line %d", f.Name, f.Line)
	}
}

func (c *parserContext) validate() State {
	line1, line2 := c.line(c.line1Idx), c.line(c.line2Idx)
	for _, iss := range ValidateSatelliteNumber(line1, line2) {
		c.fieldIssue(iss)
	}
	for _, iss := range ValidateClassification(line1) {
		c.warn(iss)
	}
	if c.opts.ValidateRanges {
		errs, warns := ValidateRanges(c.rec)
		for _, iss := range errs {
			c.fail(iss, false)
		}
		c.warnings = append(c.warnings, warns...)
	}
	if c.opts.IncludeWarnings {
		c.warnings = append(c.warnings, DetectWarnings(c.rec, c.now)...)
	}
	finishRecord(c.rec, c.comments, c.warnings, c.opts)
	if c.critical && !c.opts.IncludePartialResults {
		c.record(ActionAbort, "critical errors present and partial results disabled")
		return StateError
	}
	return StateCompleted
}
