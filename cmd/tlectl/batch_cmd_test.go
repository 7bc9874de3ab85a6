package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/manifest"
	"example.com/tlegate/internal/report"
)

func TestBatchCmdGeneratesOutputs(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "inputs")
	outDir := filepath.Join(root, "out")
	dbPath := filepath.Join(root, "catalog.db")

	writeFile(t, filepath.Join(inputDir, "alpha.tle"), issLine1+"\n"+issLine2+"\n")
	writeFile(t, filepath.Join(inputDir, "nested", "beta.3le"), "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n")
	writeFile(t, filepath.Join(inputDir, "notes.md"), "not a TLE\n")

	out, code := capture(t, func() {
		batchCmd([]string{
			"--in", inputDir,
			"--profile", "strict",
			"--out-dir", outDir,
			"--catalog", dbPath,
			"--pdf",
			"--lang", "tr",
		})
	})
	if code != 0 {
		t.Fatalf("batch exit code %d: %s", code, out)
	}
	if !strings.Contains(out, "2 file(s), 0 failed") {
		t.Fatalf("output = %s", out)
	}

	check := func(name string) {
		out := filepath.Join(outDir, name)
		if info, err := os.Stat(out); err != nil || !info.IsDir() {
			t.Fatalf("Output dir missing for %s: %v", name, err)
		}
		for _, f := range []string{"diagnostics.jsonl", "acceptance.pdf"} {
			if _, err := os.Stat(filepath.Join(out, f)); err != nil {
				t.Fatalf("%s missing for %s: %v", f, name, err)
			}
		}
		rep, err := report.LoadAcceptanceJSON(filepath.Join(out, "acceptance.json"))
		if err != nil {
			t.Fatalf("LoadAcceptanceJSON %s: %v", name, err)
		}
		if !rep.Summary.Pass || rep.Summary.Errors != 0 || rep.Summary.Accepted != 1 {
			t.Fatalf("unexpected acceptance summary for %s: %+v", name, rep.Summary)
		}
		m, err := manifest.Load(filepath.Join(out, "manifest.json"))
		if err != nil {
			t.Fatalf("manifest.Load %s: %v", name, err)
		}
		if len(m.Items) != 3 {
			t.Fatalf("manifest items for %s = %+v", name, m.Items)
		}
	}
	check("alpha")
	check("beta")

	store, err := catalog.Open(dbPath)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	defer store.Close()
	// Both files carry the same element set.
	if n, err := store.Count(context.Background()); err != nil || n != 1 {
		t.Fatalf("catalog count = %d, %v", n, err)
	}
}

func TestBatchCmdReportsRejections(t *testing.T) {
	root := t.TempDir()
	in := writeFile(t, filepath.Join(root, "bad.tle"), badSum1+"\n"+issLine2+"\n")
	out, code := capture(t, func() {
		batchCmd([]string{"--in", in, "--out-dir", filepath.Join(root, "out")})
	})
	if code != 3 || !strings.Contains(out, "PASS=false") || !strings.Contains(out, "1 failed") {
		t.Fatalf("code=%d out=%s", code, out)
	}
}

func TestAutofixCmd(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "bad.tle"), badSum1+"\n"+issLine2+"\n")

	out, code := capture(t, func() { autofixCmd([]string{"--in", in, "--dry-run"}) })
	if code != 0 || !strings.Contains(out, "1 record(s) would change") {
		t.Fatalf("dry run: code=%d out=%s", code, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.fixed.tle")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote output: %v", err)
	}

	out, code = capture(t, func() { autofixCmd([]string{"--in", in}) })
	if code != 0 {
		t.Fatalf("autofix: code=%d out=%s", code, out)
	}
	fixed, err := os.ReadFile(filepath.Join(dir, "bad.fixed.tle"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(fixed) != issLine1+"\n"+issLine2+"\n" {
		t.Fatalf("fixed = %q", fixed)
	}
	entries, err := common.ReadAuditLog(in + ".audit.jsonl")
	if err != nil || len(entries) == 0 {
		t.Fatalf("audit entries = %d, %v", len(entries), err)
	}
}

func TestReportAndManifestCmds(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "iss.tle"), issLine1+"\n"+issLine2+"\n")
	capture(t, func() { batchCmd([]string{"--in", in, "--out-dir", dir}) })
	acc := filepath.Join(dir, "iss", "acceptance.json")

	manifestPath := filepath.Join(dir, "inputs.manifest.json")
	out, code := capture(t, func() {
		manifestCmd([]string{"--inputs", in + ", " + acc, "--out", manifestPath})
	})
	if code != 0 || !strings.Contains(out, "Digest: ") {
		t.Fatalf("manifest: code=%d out=%s", code, out)
	}

	pdfPath := filepath.Join(dir, "report.pdf")
	out, code = capture(t, func() {
		reportCmd([]string{"--acceptance", acc, "--pdf", pdfPath, "--manifest", manifestPath, "--lang", "en"})
	})
	if code != 0 {
		t.Fatalf("report: code=%d out=%s", code, out)
	}
	b, err := os.ReadFile(pdfPath)
	if err != nil || !strings.HasPrefix(string(b), "%PDF-") {
		t.Fatalf("report pdf: %v", err)
	}

	_, code = capture(t, func() { reportCmd([]string{"--acceptance", acc}) })
	if code != 1 {
		t.Fatalf("missing --pdf exit code = %d", code)
	}
}

func TestPropagateAndCatalogCmds(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "iss.tle"), "ISS (ZARYA)\n"+issLine1+"\n"+issLine2+"\n")
	dbPath := filepath.Join(dir, "catalog.db")
	capture(t, func() {
		batchCmd([]string{"--in", in, "--out-dir", filepath.Join(dir, "out"), "--catalog", dbPath})
	})

	out, code := capture(t, func() {
		propagateCmd([]string{"--in", in, "--step", "10m", "--count", "3"})
	})
	if code != 0 || strings.Count(out, `"satellite": "25544"`) != 3 {
		t.Fatalf("propagate --in: code=%d out=%s", code, out)
	}
	out, code = capture(t, func() {
		propagateCmd([]string{"--catalog", dbPath, "--sat", "25544", "--at", "2008-09-20T13:00:00Z"})
	})
	if code != 0 || !strings.Contains(out, `"time": "2008-09-20T13:00:00Z"`) {
		t.Fatalf("propagate --catalog: code=%d out=%s", code, out)
	}

	out, code = capture(t, func() { catalogCmd([]string{"--db", dbPath}) })
	if code != 0 || !strings.Contains(out, "ISS (ZARYA)") || !strings.Contains(out, "1 satellite(s), 1 element set(s)") {
		t.Fatalf("catalog list: code=%d out=%s", code, out)
	}
	out, code = capture(t, func() { catalogCmd([]string{"--db", dbPath, "--sat", "25544", "--history", "5"}) })
	if code != 0 || !strings.Contains(out, issLine2) {
		t.Fatalf("catalog history: code=%d out=%s", code, out)
	}
	_, code = capture(t, func() { catalogCmd([]string{"--db", dbPath, "--sat", "99999"}) })
	if code != 3 {
		t.Fatalf("missing satellite exit code = %d", code)
	}
}

func TestManifestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, filepath.Join(dir, "iss.tle"), issLine1+"\n"+issLine2+"\n")
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPath := filepath.Join(dir, "signing.pem")
	pubPath := filepath.Join(dir, "signing.pub")
	writeFile(t, keyPath, string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})))
	writeFile(t, pubPath, string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})))

	manifestPath := filepath.Join(dir, "manifest.json")
	out, code := capture(t, func() {
		manifestCmd([]string{"--inputs", in, "--out", manifestPath, "--sign-key", keyPath})
	})
	if code != 0 || !strings.Contains(out, "Signature: "+manifestPath+".jws") {
		t.Fatalf("sign: code=%d out=%s", code, out)
	}

	verify := []string{"--out", manifestPath, "--verify", manifestPath + ".jws", "--cert", pubPath}
	out, code = capture(t, func() { manifestCmd(verify) })
	if code != 0 || !strings.Contains(out, "signature OK") {
		t.Fatalf("verify: code=%d out=%s", code, out)
	}

	writeFile(t, manifestPath, `{"items":[]}`)
	_, code = capture(t, func() { manifestCmd(verify) })
	if code != 3 {
		t.Fatalf("tampered manifest exit code = %d", code)
	}
}
