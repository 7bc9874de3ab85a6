package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/crypto"
	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/manifest"
	"example.com/tlegate/internal/report"
	"example.com/tlegate/internal/tle"
)

// batchRequest names its inputs either inline (Text) or by artifact id or
// path (Inputs). Plain text bodies are treated as one inline input.
type batchRequest struct {
	Text    string              `json:"text"`
	File    string              `json:"file"`
	Inputs  []string            `json:"inputs"`
	Profile string              `json:"profile"`
	Options jsoniter.RawMessage `json:"options"`
	Lang    string              `json:"lang"`
	DryRun  bool                `json:"dryRun"`
}

type batchSummary struct {
	Type        string                `json:"type,omitempty"`
	Acceptance  gate.AcceptanceReport `json:"acceptance"`
	Diagnostics int                   `json:"diagnostics"`
	Stored      int                   `json:"stored"`
	Manifest    string                `json:"manifestDigest,omitempty"`
	Signed      bool                  `json:"signed,omitempty"`
	Artifacts   []ArtifactRef         `json:"artifacts"`
}

func (s *Server) readBatchRequest(w http.ResponseWriter, r *http.Request) (batchRequest, gate.Profile, []gate.Input, []string, error) {
	var req batchRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if isJSON(r) {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return req, gate.Profile{}, nil, nil, fmt.Errorf("invalid json: %w", err)
		}
	} else {
		b, err := io.ReadAll(body)
		if err != nil {
			return req, gate.Profile{}, nil, nil, fmt.Errorf("read body: %w", err)
		}
		req.Text = string(b)
	}
	q := r.URL.Query()
	if req.Profile == "" {
		req.Profile = q.Get("profile")
	}
	if req.File == "" {
		req.File = q.Get("file")
	}
	if req.Lang == "" {
		req.Lang = q.Get("lang")
	}
	p, err := s.profiles.Get(req.Profile)
	if err != nil {
		return req, p, nil, nil, err
	}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &p.Options); err != nil {
			return req, p, nil, nil, fmt.Errorf("invalid options: %w", err)
		}
		if p.Options.Mode, err = tle.ParseMode(string(p.Options.Mode)); err != nil {
			return req, p, nil, nil, err
		}
	}

	var (
		inputs []gate.Input
		paths  []string
	)
	if strings.TrimSpace(req.Text) != "" {
		name := req.File
		if name == "" {
			name = "request.tle"
		}
		path, err := s.tempPath("input-*.tle")
		if err != nil {
			return req, p, nil, nil, err
		}
		if err := os.WriteFile(path, []byte(req.Text), 0o644); err != nil {
			return req, p, nil, nil, err
		}
		inputs = append(inputs, gate.Input{File: name, Text: req.Text})
		paths = append(paths, path)
	}
	for _, token := range req.Inputs {
		path, err := s.resolvePath(token)
		if err != nil {
			return req, p, nil, nil, fmt.Errorf("input resolve: %w", err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return req, p, nil, nil, err
		}
		name := filepath.Base(path)
		if art, ok := s.getArtifact(token); ok {
			name = art.Name
		}
		inputs = append(inputs, gate.Input{File: name, Text: string(b)})
		paths = append(paths, path)
	}
	if len(inputs) == 0 {
		return req, p, nil, nil, fmt.Errorf("inputs required")
	}
	return req, p, inputs, paths, nil
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, p, inputs, paths, err := s.readBatchRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := s.requestLang(r, req.Lang)
	engine := gate.NewEngine(p)
	engine.SetConcurrency(s.concurrency)

	if r.URL.Query().Get("stream") == "true" {
		writer := NewNDJSONWriter(w)
		engine.OnDiagnostic(func(d gate.Diagnostic) { _ = writer.WriteDiagnostic(d) })
		w.Header().Set("Content-Type", "application/x-ndjson")
		diags, err := engine.Eval(r.Context(), inputs...)
		engine.OnDiagnostic(nil)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		summary, err := s.finishBatch(r.Context(), engine, diags, paths, lang)
		if err != nil {
			_ = writer.WriteObject(map[string]any{"type": "error", "error": err.Error()})
			return
		}
		summary.Type = "acceptance"
		_ = writer.WriteObject(summary)
		return
	}

	diags, err := engine.Eval(r.Context(), inputs...)
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusInternalServerError)
		return
	}
	summary, err := s.finishBatch(r.Context(), engine, diags, paths, lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// finishBatch writes the run's artifacts, stores accepted records in the
// catalog and feeds the metrics collector.
func (s *Server) finishBatch(ctx context.Context, engine *gate.Engine, diags []gate.Diagnostic, inputs []string, lang report.Language) (batchSummary, error) {
	profile := engine.Profile().ProfileId
	s.metrics.Observe(profile, engine.Results(), diags)
	rep := engine.MakeAcceptance()
	summary := batchSummary{Acceptance: rep, Diagnostics: len(diags)}

	if s.catalog != nil {
		name := "request"
		if len(inputs) > 0 {
			name = filepath.Base(inputs[0])
		}
		n, err := s.catalog.Put(ctx, name, profile, engine.Accepted())
		if err != nil {
			return summary, fmt.Errorf("catalog: %w", err)
		}
		summary.Stored = n
	}

	diagPath, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		return summary, fmt.Errorf("diagnostics temp: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		return summary, fmt.Errorf("write diagnostics: %w", err)
	}
	accPath, err := s.tempPath("acceptance-*.json")
	if err != nil {
		return summary, fmt.Errorf("acceptance temp: %w", err)
	}
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		return summary, fmt.Errorf("write acceptance: %w", err)
	}
	m, err := manifest.Build(append(append([]string{}, inputs...), diagPath, accPath))
	if err != nil {
		return summary, fmt.Errorf("build manifest: %w", err)
	}
	manPath, err := s.tempPath("manifest-*.json")
	if err != nil {
		return summary, fmt.Errorf("manifest temp: %w", err)
	}
	if err := manifest.Save(m, manPath); err != nil {
		return summary, fmt.Errorf("write manifest: %w", err)
	}
	summary.Manifest = m.Digest()
	artifacts := []struct{ path, name, ctype, kind string }{
		{diagPath, "diagnostics.ndjson", "application/x-ndjson", "diagnostics"},
		{accPath, "acceptance_report.json", "application/json", "acceptance"},
	}
	if len(s.signingKey) > 0 {
		jwsPath, err := s.signManifest(manPath)
		if err != nil {
			return summary, err
		}
		summary.Signed = true
		artifacts = append(artifacts, struct{ path, name, ctype, kind string }{jwsPath, "manifest.jws", "application/jose+json", "signature"})
	}
	pdfPath, err := s.tempPath("acceptance-*.pdf")
	if err != nil {
		return summary, fmt.Errorf("acceptance pdf temp: %w", err)
	}
	if err := report.SaveAcceptancePDF(rep, pdfPath, report.PDFOptions{Lang: lang, ManifestDigest: summary.Manifest}); err != nil {
		return summary, fmt.Errorf("write acceptance pdf: %w", err)
	}

	artifacts = append(artifacts,
		struct{ path, name, ctype, kind string }{pdfPath, "acceptance_report.pdf", "application/pdf", "acceptance"},
		struct{ path, name, ctype, kind string }{manPath, "manifest.json", "application/json", "manifest"},
	)
	for _, a := range artifacts {
		art, err := s.addArtifact(a.path, a.name, a.ctype, a.kind)
		if err != nil {
			return summary, fmt.Errorf("register %s: %w", a.name, err)
		}
		summary.Artifacts = append(summary.Artifacts, toRef(art))
	}
	return summary, nil
}

func (s *Server) signManifest(manPath string) (string, error) {
	payload, err := os.ReadFile(manPath)
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	sig, err := crypto.SignDetachedJWS(payload, s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign manifest: %w", err)
	}
	jwsPath, err := s.tempPath("manifest-*.jws")
	if err != nil {
		return "", fmt.Errorf("signature temp: %w", err)
	}
	if err := crypto.SaveJWS(sig, jwsPath); err != nil {
		return "", fmt.Errorf("write signature: %w", err)
	}
	return jwsPath, nil
}

func (s *Server) handleAutoFix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, p, inputs, _, err := s.readBatchRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var audit *common.AuditLog
	var auditPath string
	if !req.DryRun {
		if auditPath, err = s.tempPath("autofix-*.jsonl"); err != nil {
			http.Error(w, fmt.Sprintf("audit temp: %v", err), http.StatusInternalServerError)
			return
		}
		audit = common.NewAuditLog(auditPath)
	}

	type fileResult struct {
		File    string           `json:"file"`
		Records []gate.FixResult `json:"records"`
		Output  *ArtifactRef     `json:"output,omitempty"`
	}
	var files []fileResult
	for _, in := range inputs {
		fixed, results, err := gate.Autofix(r.Context(), in, p.Options, s.concurrency, audit)
		if err != nil {
			http.Error(w, fmt.Sprintf("autofix %s: %v", in.File, err), http.StatusInternalServerError)
			return
		}
		fr := fileResult{File: in.File, Records: results}
		if !req.DryRun {
			outPath, err := s.tempPath("fixed-*.tle")
			if err == nil {
				err = os.WriteFile(outPath, []byte(fixed), 0o644)
			}
			if err != nil {
				http.Error(w, fmt.Sprintf("write fixed: %v", err), http.StatusInternalServerError)
				return
			}
			art, err := s.addArtifact(outPath, fixedName(in.File), "", "autofix")
			if err != nil {
				http.Error(w, fmt.Sprintf("register fixed: %v", err), http.StatusInternalServerError)
				return
			}
			ref := toRef(art)
			fr.Output = &ref
		}
		files = append(files, fr)
	}
	resp := struct {
		Files []fileResult `json:"files"`
		Audit *ArtifactRef `json:"audit,omitempty"`
	}{Files: files}
	if audit != nil {
		if _, err := os.Stat(auditPath); err == nil {
			if art, err := s.addArtifact(auditPath, "autofix_audit.jsonl", "application/x-ndjson", "audit"); err == nil {
				ref := toRef(art)
				resp.Audit = &ref
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func fixedName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".tle"
	}
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)) + ".fixed" + ext
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Inputs  []string `json:"inputs"`
		ShaAlgo string   `json:"shaAlgo"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Inputs) == 0 {
		http.Error(w, "inputs required", http.StatusBadRequest)
		return
	}
	if req.ShaAlgo != "" && !strings.EqualFold(req.ShaAlgo, "sha256") {
		http.Error(w, "only sha256 supported", http.StatusBadRequest)
		return
	}
	var paths []string
	for _, in := range req.Inputs {
		resolved, err := s.resolvePath(in)
		if err != nil {
			http.Error(w, fmt.Sprintf("resolve %s: %v", in, err), http.StatusBadRequest)
			return
		}
		paths = append(paths, resolved)
	}
	m, err := manifest.Build(paths)
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	outPath, err := s.tempPath("manifest-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("manifest temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := manifest.Save(m, outPath); err != nil {
		http.Error(w, fmt.Sprintf("write manifest: %v", err), http.StatusInternalServerError)
		return
	}
	art, err := s.addArtifact(outPath, "manifest.json", "application/json", "manifest")
	if err != nil {
		http.Error(w, fmt.Sprintf("register manifest: %v", err), http.StatusInternalServerError)
		return
	}
	resp := struct {
		Manifest manifest.Manifest `json:"manifest"`
		Digest   string            `json:"digest"`
		Artifact ArtifactRef       `json:"artifact"`
	}{
		Manifest: m,
		Digest:   m.Digest(),
		Artifact: toRef(art),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requestLang(r *http.Request, explicit string) report.Language {
	if explicit == "" {
		explicit = r.Header.Get("Accept-Language")
	}
	if explicit != "" {
		if lang, err := report.ParseLanguage(explicit); err == nil {
			return lang
		}
	}
	if s.lang != "" {
		return s.lang
	}
	return report.LangEnglish
}
