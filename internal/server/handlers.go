package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/magic-research/ragd/internal/errors"
	"github.com/magic-research/ragd/internal/source"
)

// maxUploadBytes caps document uploads at 50 MiB.
const maxUploadBytes = 50 << 20

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.status

	if docs, err := s.metadata.CountDocuments(r.Context()); err == nil {
		info.Documents = docs
	}
	if chunks, err := s.metadata.CountChunks(r.Context()); err == nil {
		info.Chunks = chunks
	}

	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, errors.InvalidInput("request body must be JSON with a question field"))
		return
	}

	resp, err := s.asker.Ask(r.Context(), req.Question, req.K)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleUpload accepts a multipart form with a "file" field, stores it
// in the upload directory, and ingests it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, errors.InvalidInput("multipart form must contain a file field"))
		return
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(header.Filename)
	if !source.Supported(name) {
		s.writeError(w, errors.InvalidInput("unsupported file type: "+name))
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err))
		return
	}
	dest := filepath.Join(s.uploadDir, name)
	out, err := os.Create(dest)
	if err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err))
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err))
		return
	}
	if err := out.Close(); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrCodeInternal, err))
		return
	}

	stats, err := s.ingester.IngestFile(r.Context(), dest)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"name":    name,
		"chunks":  stats.Chunks,
		"skipped": stats.Skipped > 0,
	})
}

// writeError maps structured error codes onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	code := errors.GetCode(err)
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeQueryEmpty:
		status = http.StatusBadRequest
	case errors.ErrCodeDimensionMismatch:
		status = http.StatusConflict
	case errors.ErrCodeFileNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeIngestLocked:
		status = http.StatusConflict
	case errors.ErrCodeRetrievalUnavailable, errors.ErrCodeAllProvidersFailed, errors.ErrCodeNoProviders:
		status = http.StatusServiceUnavailable
	case errors.ErrCodeNetworkTimeout:
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.logger.Error("request failed", "code", code, "error", err)
	} else {
		s.logger.Debug("request rejected", "code", code, "error", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
