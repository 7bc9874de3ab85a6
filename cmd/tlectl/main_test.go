package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"
	badSum1  = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2928"
)

type exitCode int

// capture runs fn with stdout redirected and returns what it printed along
// with the exit code it requested (0 when it returned normally).
func capture(t *testing.T, fn func()) (out string, code int) {
	t.Helper()
	var buf bytes.Buffer
	oldOut, oldExit := stdout, exit
	stdout = &buf
	exit = func(c int) { panic(exitCode(c)) }
	defer func() {
		stdout, exit = oldOut, oldExit
		if r := recover(); r != nil {
			c, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			out, code = buf.String(), int(c)
		}
	}()
	fn()
	return buf.String(), 0
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSuggest(t *testing.T) {
	tests := []struct{ in, want string }{
		{"validat", "validate"},
		{"CHECKSUM", "checksum"},
		{"reprot", "report"},
		{"frobnicate", ""},
	}
	for _, tc := range tests {
		if got := suggest(tc.in); got != tc.want {
			t.Fatalf("suggest(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	out, code := capture(t, func() { dispatch("valdate", nil) })
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, `did you mean "validate"?`) {
		t.Fatalf("output = %q", out)
	}
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, filepath.Join(dir, "good.tle"), issLine1+"\n"+issLine2+"\n")
	bad := writeFile(t, filepath.Join(dir, "bad.tle"), badSum1+"\n"+issLine2+"\n")

	out, code := capture(t, func() { validateCmd([]string{"--in", good, "--no-warnings"}) })
	if code != 0 || !strings.Contains(out, `"isValid": true`) {
		t.Fatalf("good: code=%d out=%s", code, out)
	}
	out, code = capture(t, func() { validateCmd([]string{"--in", bad}) })
	if code != 3 || !strings.Contains(out, "CHECKSUM_MISMATCH") {
		t.Fatalf("bad: code=%d out=%s", code, out)
	}
	_, code = capture(t, func() { validateCmd([]string{"--in", bad, "--profile", "permissive"}) })
	if code != 0 {
		t.Fatalf("permissive should accept a checksum mismatch, code=%d", code)
	}
}

func TestChecksumCmd(t *testing.T) {
	out, code := capture(t, func() { checksumCmd([]string{"--line", issLine1}) })
	if code != 0 || !strings.Contains(out, "checksum=7") {
		t.Fatalf("code=%d out=%s", code, out)
	}
	_, code = capture(t, func() { checksumCmd([]string{"--line", badSum1}) })
	if code != 3 {
		t.Fatalf("bad checksum exit code = %d", code)
	}
}

func TestParseCmdFormats(t *testing.T) {
	in := writeFile(t, filepath.Join(t.TempDir(), "iss.tle"), "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n")
	out, code := capture(t, func() { parseCmd([]string{"--in", in, "--format", "tle"}) })
	if code != 0 || out != "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n" {
		t.Fatalf("code=%d out=%q", code, out)
	}
	_, code = capture(t, func() { parseCmd([]string{"--in", in, "--format", "xml"}) })
	if code != 1 {
		t.Fatalf("unknown format exit code = %d", code)
	}
}
