package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"example.com/tlegate/internal/catalog"
	"example.com/tlegate/internal/common"
	"example.com/tlegate/internal/format"
	"example.com/tlegate/internal/gate"
	"example.com/tlegate/internal/metrics"
	"example.com/tlegate/internal/report"
	"example.com/tlegate/internal/tle"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server coordinates HTTP handlers and manages temporary artifacts produced by
// validation requests.
type Server struct {
	artifacts   *ArtifactStore
	storageDir  string
	workDir     string
	uploadsDir  string
	profiles    *gate.Registry
	concurrency int
	maxBody     int64
	lang        report.Language
	catalog     *catalog.Store
	metrics     *metrics.Collector
	signingKey  []byte
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	registry, err := buildRegistry(opts)
	if err != nil {
		return nil, err
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	if storageDir, err = filepath.Abs(storageDir); err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(storageDir); err == nil {
		storageDir = resolved
	}
	workDir, err := os.MkdirTemp(storageDir, "tlegated-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Server{
		artifacts:   &ArtifactStore{entries: make(map[string]Artifact)},
		storageDir:  storageDir,
		workDir:     workDir,
		uploadsDir:  uploadsDir,
		profiles:    registry,
		concurrency: concurrency,
		maxBody:     maxBody,
		lang:        opts.Lang,
		catalog:     opts.Catalog,
		metrics:     opts.Metrics,
		signingKey:  opts.SigningKey,
	}, nil
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          randomID(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

var errOutsideStorage = errors.New("path outside storage directory")

// resolvePath accepts an artifact id or a path inside the storage directory.
func (s *Server) resolvePath(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty input path")
	}
	if art, ok := s.getArtifact(token); ok {
		return art.Path, nil
	}
	path := filepath.Clean(token)
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.storageDir, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(s.storageDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideStorage
	}
	return resolved, nil
}

// recordRequest is the body of the single-record endpoints. Plain text
// bodies are accepted too, with profile and format taken from the query.
type recordRequest struct {
	TLE     string              `json:"tle"`
	Line    string              `json:"line"`
	Profile string              `json:"profile"`
	Options jsoniter.RawMessage `json:"options"`
	Format  string              `json:"format"`
}

func (s *Server) readRecordRequest(w http.ResponseWriter, r *http.Request) (recordRequest, gate.Profile, error) {
	var req recordRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if isJSON(r) {
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			return req, gate.Profile{}, fmt.Errorf("invalid json: %w", err)
		}
	} else {
		b, err := io.ReadAll(body)
		if err != nil {
			return req, gate.Profile{}, fmt.Errorf("read body: %w", err)
		}
		req.TLE = string(b)
		req.Line = strings.TrimRight(string(b), "\r\n")
	}
	q := r.URL.Query()
	if req.Profile == "" {
		req.Profile = q.Get("profile")
	}
	if req.Format == "" {
		req.Format = q.Get("format")
	}
	p, err := s.profiles.Get(req.Profile)
	if err != nil {
		return req, p, err
	}
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &p.Options); err != nil {
			return req, p, fmt.Errorf("invalid options: %w", err)
		}
		if p.Options.Mode, err = tle.ParseMode(string(p.Options.Mode)); err != nil {
			return req, p, err
		}
	}
	return req, p, nil
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json")
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, p, err := s.readRecordRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := tle.Validate(req.TLE, p.Options)
	s.observeIssues(res.Errors, res.Warnings)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, p, err := s.readRecordRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, err := format.Parse(req.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := tle.Parse(req.TLE, p.Options)
	if err != nil {
		var verr *tle.ValidationError
		if errors.As(err, &verr) {
			s.observeIssues(verr.Errors, verr.Warnings)
			writeJSON(w, http.StatusUnprocessableEntity, verr)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.observeIssues(nil, rec.Warnings)
	w.Header().Set("Content-Type", f.ContentType())
	w.WriteHeader(http.StatusOK)
	if err := format.Encode(w, f, []*tle.ParsedTLE{rec}); err != nil {
		common.Logf("parse: encode %s: %v", f, err)
	}
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, p, err := s.readRecordRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res := tle.ParseWithRecovery(req.TLE, p.Options)
	s.observeIssues(res.Errors, res.Warnings)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleChecksum(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, _, err := s.readRecordRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	line := req.Line
	if line == "" {
		line = strings.TrimRight(req.TLE, "\r\n")
	}
	if line == "" {
		http.Error(w, "line required", http.StatusBadRequest)
		return
	}
	resp := struct {
		Checksum int         `json:"checksum"`
		Valid    bool        `json:"valid"`
		Issues   []tle.Issue `json:"issues,omitempty"`
	}{Checksum: tle.Checksum(line)}
	if len(line) == tle.LineLength {
		resp.Issues = tle.ValidateChecksum(line, lineNumber(line))
		resp.Valid = len(resp.Issues) == 0
	}
	writeJSON(w, http.StatusOK, resp)
}

func lineNumber(line string) int {
	if strings.HasPrefix(line, "2") {
		return 2
	}
	return 1
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.profiles.All())
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.catalog == nil {
		http.Error(w, "catalog disabled", http.StatusNotFound)
		return
	}
	sat := strings.Trim(strings.TrimPrefix(r.URL.Path, "/catalog"), "/")
	if sat == "" {
		sats, err := s.catalog.Satellites(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, sats)
		return
	}
	if r.URL.Query().Has("history") {
		var limit int
		fmt.Sscanf(r.URL.Query().Get("history"), "%d", &limit)
		entries, err := s.catalog.History(r.Context(), sat, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	entry, err := s.catalog.Latest(r.Context(), sat)
	if errors.Is(err, catalog.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.listArtifacts())
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	io.Copy(w, f)
}

func (s *Server) observeIssues(errs, warns []tle.Issue) {
	if s.metrics == nil {
		return
	}
	for _, iss := range append(append([]tle.Issue{}, errs...), warns...) {
		s.metrics.ObserveDiagnostic(gate.Diagnostic{Code: iss.Code, Severity: severity(iss)})
	}
}

func severity(iss tle.Issue) gate.Severity {
	switch iss.Severity {
	case tle.SeverityError:
		return gate.ERROR
	case tle.SeverityWarning:
		return gate.WARN
	}
	return gate.INFO
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".tle", ".3le", ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func randomID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := time.Now().UTC()
		return fmt.Sprintf("%d%06d", now.UnixNano(), os.Getpid())
	}
	return hex.EncodeToString(b[:])
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
