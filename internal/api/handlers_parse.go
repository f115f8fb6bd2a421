package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgallion1/annodoc/internal/extract"
	"github.com/dgallion1/annodoc/internal/parser"
	"github.com/dgallion1/annodoc/internal/resolver"
)

// metaFields are the request fields broadcast to every parsed entity.
var metaFields = []string{"author", "copyright", "repository", "licence"}

// handleParse parses one file synchronously and returns its records. The
// file arrives either as multipart field "file" or as the raw request body
// named by ?filename=.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	var (
		filename string
		data     []byte
		err      error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		filename = sanitizeFilename(header.Filename)
		data, err = io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
		if err != nil {
			jsonError(w, "failed to read file", http.StatusInternalServerError)
			return
		}
	} else {
		filename = sanitizeFilename(r.URL.Query().Get("filename"))
		data, err = io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxUploadBytes+1))
		if err != nil {
			jsonError(w, "failed to read body", http.StatusBadRequest)
			return
		}
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	meta := requestMeta(r, filename)
	res, err := s.extractorFor(r).Extract(filename, meta, string(data))
	if err != nil {
		writeExtractError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// extractorFor returns the shared extractor unless the request asks for
// options that differ from the server defaults.
func (s *Server) extractorFor(r *http.Request) *extract.Extractor {
	html := boolParam(r, "html", s.cfg.RenderHTML)
	strict := boolParam(r, "strict", s.cfg.StrictKinds)
	if html == s.cfg.RenderHTML && strict == s.cfg.StrictKinds {
		return s.orchestrator.Extractor()
	}
	return extract.New(extract.WithStats(s.stats), extract.WithLogger(s.log), extract.HTML(html), extract.Strict(strict))
}

func boolParam(r *http.Request, key string, fallback bool) bool {
	switch r.FormValue(key) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return fallback
}

// requestMeta collects metadata from form or query fields. file_path, when
// present, names the file in place of the upload name.
func requestMeta(r *http.Request, filename string) map[string]any {
	meta := map[string]any{"file": filename}
	if p := r.FormValue("file_path"); p != "" {
		meta["file"] = p
	}
	for _, k := range metaFields {
		if v := r.FormValue(k); v != "" {
			meta[k] = v
		}
	}
	return meta
}

func writeExtractError(w http.ResponseWriter, err error) {
	if errors.Is(err, parser.ErrUnsupportedExtension) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(map[string]any{
		"error":  err.Error(),
		"line":   resolver.Line(err),
		"reason": extract.Reason(err),
	})
}
