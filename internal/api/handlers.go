package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/amirmursal/medinet-process-data/internal/metrics"
	"github.com/amirmursal/medinet-process-data/internal/query"
)

const (
	msgUploaded   = "File uploaded and data stored successfully"
	msgNoFile     = "No file uploaded"
	msgTooLarge   = "File too large"
	msgUploadFail = "Internal server error"
	msgFetched    = "Data fetched successfully"
	msgFetchFail  = "Error fetching data"
	msgDeleted    = "record deleted successfully"
	msgDeleteFail = "Error deleting data"
)

// handleUpload stores the multipart "file" under the upload directory and
// hands it to the ingestion pipeline, which removes it after decoding.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxUploadMB)<<20)
	src, hdr, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		writeMessage(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer src.Close()

	path, sum, err := s.save(src, filepath.Ext(hdr.Filename))
	if err != nil {
		log.Printf("upload: save name=%q err=%v", hdr.Filename, err)
		writeMessage(w, http.StatusInternalServerError, msgUploadFail)
		return
	}
	log.Printf("upload: name=%q path=%s size=%d xxh3=%016x", hdr.Filename, path, hdr.Size, sum)

	res, err := s.pipeline.Ingest(r.Context(), path)
	if err != nil {
		log.Printf("upload: %v", err)
		writeMessage(w, http.StatusInternalServerError, msgUploadFail)
		return
	}
	log.Printf("upload: stored path=%s fields=%d inserted=%d", path, len(res.Fields), res.Inserted)
	writeMessage(w, http.StatusOK, msgUploaded)
}

// save copies src to a new, exclusively created file-<random><ext> and
// fingerprints it.
func (s *Server) save(src io.Reader, ext string) (string, uint64, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", 0, err
	}
	ext = strings.ReplaceAll(strings.ToLower(ext), "*", "")
	dst, err := os.CreateTemp(s.cfg.UploadDir, "file-*"+ext)
	if err != nil {
		return "", 0, err
	}
	path := dst.Name()
	h := xxh3.New()
	_, err = io.Copy(io.MultiWriter(dst, h), src)
	if cerr := dst.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, h.Sum64(), nil
}

type searchRequest struct {
	Search     json.RawMessage   `json:"search"`
	Conditions []query.Condition `json:"conditions"`
}

// predicate resolves the request filter: a wire predicate wins over
// conditions, and neither matches everything.
func (req searchRequest) predicate() (query.Predicate, error) {
	if raw := bytes.TrimSpace(req.Search); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		return query.Decode(raw)
	}
	if req.Conditions != nil {
		return query.Compile(req.Conditions), nil
	}
	return query.All{}, nil
}

// decodeBody decodes an optional JSON body; an empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	p, err := req.predicate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	data, err := s.repo.Find(r.Context(), p)
	metrics.RecordStep(s.cfg.Job, "search", err, time.Since(start))
	if err != nil {
		log.Printf("search: err=%v", err)
		writeError(w, http.StatusInternalServerError, msgFetchFail)
		return
	}
	metrics.RecordRow(s.cfg.Job, "matched", int64(len(data)))
	writeJSON(w, http.StatusOK, map[string]any{"message": msgFetched, "data": data})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	start := time.Now()
	n, err := s.repo.DeleteByID(r.Context(), req.ID)
	metrics.RecordStep(s.cfg.Job, "delete", err, time.Since(start))
	if err != nil {
		log.Printf("delete: id=%s err=%v", req.ID, err)
		writeError(w, http.StatusInternalServerError, msgDeleteFail)
		return
	}
	metrics.RecordRow(s.cfg.Job, "deleted", n)
	writeMessage(w, http.StatusOK, msgDeleted)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	fields := s.cfg.Fields
	if fields == nil {
		fields = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fields":    fields,
		"operators": query.Operators(),
	})
}

// handleCompile validates a condition list against the field enumeration
// and returns the wire form clients send back as /search's "search".
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conditions []query.Condition `json:"conditions"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	m, err := query.FromConditions(s.cfg.Fields, req.Conditions)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"search": query.Encode(m.Predicate())})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
