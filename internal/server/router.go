package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/validate", s.handleValidate)
	mux.HandleFunc("/parse", s.handleParse)
	mux.HandleFunc("/recover", s.handleRecover)
	mux.HandleFunc("/checksum", s.handleChecksum)
	mux.HandleFunc("/batch", s.handleBatch)
	mux.HandleFunc("/auto-fix", s.handleAutoFix)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/profiles", s.handleProfiles)
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/catalog", s.handleCatalog)
	mux.HandleFunc("/catalog/", s.handleCatalog)
	mux.HandleFunc("/artifacts/", s.handleArtifactDownload)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return s.metrics.Middleware(mux)
}
