package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	lev "github.com/agnivade/levenshtein"

	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/tle"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stdout and exit are swapped in tests.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
	exit             = os.Exit
)

type command struct {
	name string
	run  func(args []string)
}

func commands() []command {
	return []command{
		{"validate", validateCmd},
		{"parse", parseCmd},
		{"recover", recoverCmd},
		{"checksum", checksumCmd},
		{"autofix", autofixCmd},
		{"batch", batchCmd},
		{"report", reportCmd},
		{"manifest", manifestCmd},
		{"propagate", propagateCmd},
		{"catalog", catalogCmd},
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	dispatch(os.Args[1], os.Args[2:])
}

func dispatch(name string, args []string) {
	for _, c := range commands() {
		if c.name == name {
			c.run(args)
			return
		}
	}
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}
	fmt.Fprintf(stdout, "unknown command %q\n", name)
	if s := suggest(name); s != "" {
		fmt.Fprintf(stdout, "did you mean %q?\n", s)
	}
	exit(2)
}

// suggest returns the command closest to name, or "" when nothing is
// within two edits.
func suggest(name string) string {
	best, bestDist := "", 3
	for _, c := range commands() {
		if d := lev.ComputeDistance(strings.ToLower(name), c.name); d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}

func usage() {
	fmt.Fprintf(stdout, `tlectl %s (built %s) <command> [options]

Commands:
  validate  --in <file|-> [--profile strict|permissive|<name>] [--profiles <file>] [--no-warnings]
  parse     --in <file|-> [--profile <name>] [--format json|yaml|csv|text|tle]
  recover   --in <file|-> [--no-partial]
  checksum  --line <line> | --in <file|->
  autofix   --in <file> [--out <file.fixed.tle>] [--audit <audit.jsonl>] [--dry-run]
  batch     --in <dir|file> --out-dir <dir> [--profile <name>] [--catalog <db>] [--pdf] [--lang en|tr]
  report    --acceptance <acceptance.json> --pdf <out.pdf> [--manifest <manifest.json>] [--lang en|tr]
  manifest  --inputs <comma-separated> --out <manifest.json> [--sign-key <key.pem>]
            --out <manifest.json> --verify <manifest.json.jws> --cert <cert.pem>
  propagate (--in <file> | --catalog <db> --sat <number>) [--at <RFC3339>] [--step 1m --count 10]
  catalog   --db <db> [--sat <number>] [--history <n>]
`, version, buildDate)
}

func fail(step string, err error) {
	fmt.Fprintf(stdout, "%s: %v\n", step, err)
	exit(1)
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("required: --in")
	}
	if path == "-" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

// resolveProfile looks name up among the built-in profiles and those in
// profilesPath.
func resolveProfile(name, profilesPath string) (gate.Profile, error) {
	var extra []gate.Profile
	if profilesPath != "" {
		loaded, err := gate.LoadProfiles(profilesPath)
		if err != nil {
			return gate.Profile{}, err
		}
		extra = loaded
	}
	return gate.NewRegistry(extra...).Get(name)
}

func profileOptions(name, profilesPath string, noWarnings bool) tle.Options {
	p, err := resolveProfile(name, profilesPath)
	if err != nil {
		fail("profile", err)
		return tle.Options{}
	}
	if noWarnings {
		p.Options.IncludeWarnings = false
	}
	return p.Options
}
