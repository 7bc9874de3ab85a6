package server

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"example.com/tlegate/internal/tle"
)

const maxUploadMemory = 32 << 20

// UploadRef is an uploaded file plus the number of records found in it.
type UploadRef struct {
	ArtifactRef
	Records int `json:"records"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}
	fields := make([]string, 0, len(r.MultipartForm.File))
	for field := range r.MultipartForm.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var refs []UploadRef
	for _, field := range fields {
		for _, fh := range r.MultipartForm.File[field] {
			ref, err := s.saveUploadedFile(fh)
			if err != nil {
				http.Error(w, fmt.Sprintf("save upload %s: %v", fh.Filename, err), http.StatusBadRequest)
				return
			}
			refs = append(refs, ref)
		}
	}
	writeJSON(w, http.StatusOK, struct {
		Files []UploadRef `json:"files"`
	}{Files: refs})
}

func (s *Server) saveUploadedFile(fh *multipart.FileHeader) (UploadRef, error) {
	src, err := fh.Open()
	if err != nil {
		return UploadRef{}, err
	}
	defer src.Close()
	pattern := "upload-*"
	if ext := filepath.Ext(fh.Filename); ext != "" {
		pattern += ext
	}
	dest, err := os.CreateTemp(s.uploadsDir, pattern)
	if err != nil {
		return UploadRef{}, err
	}
	data, err := io.ReadAll(src)
	if err == nil {
		_, err = dest.Write(data)
	}
	dest.Close()
	if err != nil {
		os.Remove(dest.Name())
		return UploadRef{}, err
	}
	art, err := s.addArtifact(dest.Name(), filepath.Base(fh.Filename), guessContentType(fh.Filename), "upload")
	if err != nil {
		return UploadRef{}, err
	}
	return UploadRef{ArtifactRef: toRef(art), Records: len(tle.SplitRecords(string(data)))}, nil
}
