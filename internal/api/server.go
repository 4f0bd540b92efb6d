package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/misranishchay/rag-architecture-implementation-app/internal/engine"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/ingest"
	"github.com/misranishchay/rag-architecture-implementation-app/internal/types"
)

const defaultMaxUpload = 32 << 20

// Options tune the HTTP surface. Uploads are written under StagingDir and
// moved into UploadDir once complete, so StagingDir must sit on the same
// filesystem. It defaults to a hidden sibling of UploadDir.
type Options struct {
	UploadDir      string
	StagingDir     string
	MaxUploadBytes int64
}

type Server struct {
	db         *engine.Database
	answerer   *engine.Answerer
	pipeline   *ingest.Pipeline
	uploadDir  string
	stagingDir string
	maxUpload  int64
}

func NewServer(db *engine.Database, answerer *engine.Answerer, pipeline *ingest.Pipeline, opts Options) *Server {
	if opts.UploadDir == "" {
		opts.UploadDir = "uploads"
	}
	if opts.StagingDir == "" {
		up := filepath.Clean(opts.UploadDir)
		opts.StagingDir = filepath.Join(filepath.Dir(up), "."+filepath.Base(up)+"-staging")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	return &Server{
		db:         db,
		answerer:   answerer,
		pipeline:   pipeline,
		uploadDir:  opts.UploadDir,
		stagingDir: opts.StagingDir,
		maxUpload:  opts.MaxUploadBytes,
	}
}

type AskRequest struct {
	Question string `json:"question"`
}

type SearchRequest struct {
	Query types.Vector `json:"query"`
	K     int          `json:"k"`
}

type UploadResponse struct {
	Status   string        `json:"status"`
	Filename string        `json:"filename"`
	Report   ingest.Report `json:"report"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "docqa",
		"ok":        true,
		"time_utc":  time.Now().UTC().Format(time.RFC3339),
		"endpoints": []string{"/health", "/stats", "/upload", "/ask", "/search"},
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.db.Stats()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"time_utc":  time.Now().UTC().Format(time.RFC3339),
		"vec_count": stats.Vectors,
	})
}

func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.db.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleUpload stores the multipart field "file" in the upload directory and
// ingests the directory. Files already ingested are skipped by name.
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := requestLogger(r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()

	name := SanitizeFilename(header.Filename)
	if name == "" {
		writeError(w, http.StatusBadRequest, "no selected file")
		return
	}

	for _, dir := range []string{s.uploadDir, s.stagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("creating upload dir failed", "dir", dir, "error", err)
			writeError(w, http.StatusInternalServerError, "error processing file")
			return
		}
	}
	if err := saveFile(s.stagingDir, filepath.Join(s.uploadDir, name), file); err != nil {
		log.Error("saving upload failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}
	log.Info("file uploaded", "file", name, "bytes", header.Size)

	report, err := s.pipeline.Run(r.Context(), s.uploadDir)
	if err != nil {
		log.Error("processing uploaded file failed", "file", name, "error", err)
		writeError(w, http.StatusInternalServerError, "error processing file")
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Status: "processed", Filename: name, Report: report})
}

// saveFile copies src into a temp file under stagingDir and renames it to
// path only once the copy is complete. A concurrent ingestion run listing the
// upload directory never sees a partial file.
func saveFile(stagingDir, path string, src io.Reader) error {
	tmp, err := os.CreateTemp(stagingDir, "upload-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// HandleAsk answers a question given as JSON {"question": ...} or as the form
// field "question".
func (s *Server) HandleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	log := requestLogger(r)

	var question string
	if isJSON(r) {
		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		question = req.Question
	} else {
		question = r.FormValue("question")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	log.Info("received question", "question", question)

	res, err := s.answerer.Answer(r.Context(), question)
	if err != nil {
		log.Error("processing question failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error processing question")
		return
	}
	log.Info("generated answer", "answer", res.Answer, "sources", len(res.Sources))
	writeJSON(w, http.StatusOK, res)
}

// HandleSearch runs a raw vector search.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Query) == 0 {
		writeError(w, http.StatusBadRequest, "query vector is required")
		return
	}
	if req.K <= 0 {
		req.K = engine.DefaultTopK
	}

	hits, err := s.db.Search(req.Query, req.K)
	switch {
	case errors.Is(err, engine.ErrDimensionMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		requestLogger(r).Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

// SanitizeFilename reduces name to a safe base name of ASCII letters, digits,
// dots, dashes and underscores. It returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = name[strings.LastIndex(name, "/")+1:]

	var b strings.Builder
	for _, r := range strings.Join(strings.Fields(name), "_") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "._")
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HandleRoot)
	mux.HandleFunc("/health", s.HandleHealth)
	mux.HandleFunc("/stats", s.HandleStats)
	mux.HandleFunc("/upload", s.HandleUpload)
	mux.HandleFunc("/ask", s.HandleAsk)
	mux.HandleFunc("/search", s.HandleSearch)
	return withRequestID(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}
