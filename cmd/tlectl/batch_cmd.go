package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/crypto"
	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/manifest"
	"example.com/tlegate/internal/report"
)

var tleExtensions = map[string]bool{".tle": true, ".3le": true, ".txt": true}

// collectInputs returns the TLE files under root, or root itself when it
// is a file.
func collectInputs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && tleExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func outputName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory or file")
	profile := fs.String("profile", "strict", "validation profile")
	profiles := fs.String("profiles", "", "extra profiles (yaml or json)")
	outDir := fs.String("out-dir", "out", "results directory")
	catalogPath := fs.String("catalog", "", "sqlite catalog receiving accepted records")
	pdf := fs.Bool("pdf", false, "also write acceptance.pdf")
	lang := fs.String("lang", "en", "report language")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "records validated in parallel")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics")
	fs.Parse(args)

	p, err := resolveProfile(*profile, *profiles)
	if err != nil {
		fail("profile", err)
		return
	}
	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fail("lang", err)
		return
	}
	files, err := collectInputs(*inDir)
	if err != nil {
		fail("collect inputs", err)
		return
	}
	if len(files) == 0 {
		fmt.Fprintln(stdout, "no TLE files found in", *inDir)
		return
	}
	var store *catalog.Store
	if *catalogPath != "" {
		if store, err = catalog.Open(*catalogPath); err != nil {
			fail("catalog", err)
			return
		}
		defer store.Close()
	}

	metrics := common.NewMetrics()
	metrics.Start()
	var stopProgress func()
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	ctx := context.Background()
	failed := 0
	for _, path := range files {
		rep, err := batchFile(ctx, path, filepath.Join(*outDir, outputName(path)), p, *concurrency, metrics, store, *pdf, language)
		if err != nil {
			fail(path, err)
			return
		}
		if !rep.Summary.Pass {
			failed++
		}
		fmt.Fprintf(stdout, "%s: PASS=%v records=%d accepted=%d rejected=%d duplicates=%d\n",
			path, rep.Summary.Pass, rep.Summary.Records, rep.Summary.Accepted, rep.Summary.Rejected, rep.Summary.Duplicates)
	}
	if stopProgress != nil {
		stopProgress()
	}
	metrics.Stop()
	if *metricsFlag {
		fmt.Fprintln(stdout, "Metrics:", metrics.Snapshot().Summary())
	}
	fmt.Fprintf(stdout, "%d file(s), %d failed\n", len(files), failed)
	if failed > 0 {
		exit(3)
	}
}

func batchFile(ctx context.Context, path, out string, p gate.Profile, workers int, metrics *common.Metrics, store *catalog.Store, pdf bool, lang report.Language) (gate.AcceptanceReport, error) {
	text, err := readInput(path)
	if err != nil {
		return gate.AcceptanceReport{}, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return gate.AcceptanceReport{}, err
	}
	engine := gate.NewEngine(p)
	engine.SetConcurrency(workers)
	engine.SetMetrics(metrics)
	if _, err := engine.Eval(ctx, gate.Input{File: path, Text: text}); err != nil {
		return gate.AcceptanceReport{}, fmt.Errorf("eval: %w", err)
	}
	diagPath := filepath.Join(out, "diagnostics.jsonl")
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		return gate.AcceptanceReport{}, fmt.Errorf("write diags: %w", err)
	}
	rep := engine.MakeAcceptance()
	accPath := filepath.Join(out, "acceptance.json")
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		return rep, fmt.Errorf("write report: %w", err)
	}
	if store != nil {
		if _, err := store.Put(ctx, filepath.Base(path), p.ProfileId, engine.Accepted()); err != nil {
			return rep, err
		}
	}
	m, err := manifest.Build([]string{path, diagPath, accPath})
	if err != nil {
		return rep, fmt.Errorf("manifest: %w", err)
	}
	if err := manifest.Save(m, filepath.Join(out, "manifest.json")); err != nil {
		return rep, fmt.Errorf("manifest: %w", err)
	}
	if pdf {
		opts := report.PDFOptions{Lang: lang, ManifestDigest: m.Digest()}
		if err := report.SaveAcceptancePDF(rep, filepath.Join(out, "acceptance.pdf"), opts); err != nil {
			return rep, fmt.Errorf("write pdf: %w", err)
		}
	}
	return rep, nil
}

func autofixCmd(args []string) {
	fs := flag.NewFlagSet("autofix", flag.ExitOnError)
	in := fs.String("in", "", "input TLE file")
	out := fs.String("out", "", "fixed output (default <in>.fixed.tle)")
	auditPath := fs.String("audit", "", "audit log output (default <in>.audit.jsonl)")
	profile := fs.String("profile", "strict", "validation profile")
	profiles := fs.String("profiles", "", "extra profiles (yaml or json)")
	concurrency := fs.Int("concurrency", 1, "records recovered in parallel")
	dryRun := fs.Bool("dry-run", false, "report what would change without writing")
	fs.Parse(args)

	if *in == "" {
		fmt.Fprintln(stdout, "required: --in")
		exit(1)
		return
	}
	text, err := readInput(*in)
	if err != nil {
		fail("read input", err)
		return
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".fixed.tle"
	}
	if *auditPath == "" {
		*auditPath = *in + ".audit.jsonl"
	}
	var audit *common.AuditLog
	if !*dryRun {
		audit = common.NewAuditLog(*auditPath)
	}
	opts := profileOptions(*profile, *profiles, false)
	fixed, results, err := gate.Autofix(context.Background(), gate.Input{File: *in, Text: text}, opts, *concurrency, audit)
	if err != nil {
		fail("autofix", err)
		return
	}

	changed := 0
	for _, r := range results {
		switch {
		case r.Skipped != "":
			fmt.Fprintf(stdout, "record %d: skipped, %s\n", r.Record, r.Skipped)
		case r.Changed:
			changed++
			fmt.Fprintf(stdout, "record %d (%s): rebuilt, valid=%v\n", r.Record, r.Satellite, r.ValidAfter)
		}
	}
	if changed == 0 {
		fmt.Fprintln(stdout, "No fixes applied")
		return
	}
	if *dryRun {
		fmt.Fprintf(stdout, "%d record(s) would change\n", changed)
		return
	}
	if err := os.WriteFile(*out, []byte(fixed), 0o644); err != nil {
		fail("write output", err)
		return
	}
	fmt.Fprintln(stdout, "Wrote", *out)
	fmt.Fprintf(stdout, "Audit log: %s\n", audit.Path())
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	accPath := fs.String("acceptance", "", "acceptance.json")
	pdfPath := fs.String("pdf", "", "output acceptance report PDF")
	manifestPath := fs.String("manifest", "", "manifest.json whose digest is printed as a QR code")
	lang := fs.String("lang", "en", "report language (en, tr)")
	fs.Parse(args)

	if *accPath == "" || *pdfPath == "" {
		fmt.Fprintln(stdout, "required: --acceptance, --pdf")
		exit(1)
		return
	}
	language, err := report.ParseLanguage(*lang)
	if err != nil {
		fail("lang", err)
		return
	}
	rep, err := report.LoadAcceptanceJSON(*accPath)
	if err != nil {
		fail("load acceptance", err)
		return
	}
	opts := report.PDFOptions{Lang: language}
	if *manifestPath != "" {
		m, err := manifest.Load(*manifestPath)
		if err != nil {
			fail("load manifest", err)
			return
		}
		opts.ManifestDigest = m.Digest()
	}
	if err := report.SaveAcceptancePDF(rep, *pdfPath, opts); err != nil {
		fail("write pdf", err)
		return
	}
	fmt.Fprintln(stdout, "Wrote PDF:", *pdfPath)
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	signKey := fs.String("sign-key", "", "PEM RSA private key; writes <out>.jws")
	verify := fs.String("verify", "", "JWS to check against --out instead of building")
	cert := fs.String("cert", "", "PEM certificate or public key used by --verify")
	fs.Parse(args)

	if *verify != "" {
		verifyManifest(*out, *verify, *cert)
		return
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		fmt.Fprintln(stdout, "required: --inputs")
		exit(1)
		return
	}
	m, err := manifest.Build(paths)
	if err != nil {
		fail("manifest build", err)
		return
	}
	if err := manifest.Save(m, *out); err != nil {
		fail("manifest save", err)
		return
	}
	fmt.Fprintln(stdout, "Wrote", *out)
	fmt.Fprintln(stdout, "Digest:", m.Digest())

	if *signKey == "" {
		return
	}
	key, err := os.ReadFile(*signKey)
	if err != nil {
		fail("signing key", err)
		return
	}
	payload, err := os.ReadFile(*out)
	if err != nil {
		fail("manifest read", err)
		return
	}
	sig, err := crypto.SignDetachedJWS(payload, key)
	if err != nil {
		fail("sign", err)
		return
	}
	if err := crypto.SaveJWS(sig, *out+".jws"); err != nil {
		fail("write signature", err)
		return
	}
	fmt.Fprintln(stdout, "Signature:", *out+".jws")
}

func verifyManifest(manifestPath, jwsPath, certPath string) {
	if certPath == "" {
		fmt.Fprintln(stdout, "required: --cert with --verify")
		exit(1)
		return
	}
	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		fail("manifest read", err)
		return
	}
	pub, err := os.ReadFile(certPath)
	if err != nil {
		fail("cert", err)
		return
	}
	sig, err := crypto.LoadJWS(jwsPath)
	if err != nil {
		fail("signature", err)
		return
	}
	if err := crypto.VerifyDetachedJWS(sig, payload, pub); err != nil {
		fmt.Fprintf(stdout, "%s: %v\n", manifestPath, err)
		exit(3)
		return
	}
	fmt.Fprintf(stdout, "%s: signature OK\n", manifestPath)
}
