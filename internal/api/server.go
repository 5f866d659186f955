package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"meeting-insights-go/internal/audio"
	"meeting-insights-go/internal/inbox"
	"meeting-insights-go/internal/lifecycle"
	"meeting-insights-go/internal/logger"
	"meeting-insights-go/internal/pipeline"
	"meeting-insights-go/internal/report"
	"meeting-insights-go/internal/store"
	"meeting-insights-go/internal/tracing"
	"meeting-insights-go/internal/types"
	"meeting-insights-go/internal/workbook"
)

// maxUploadBytes leaves room for multipart overhead above the audio limit.
const maxUploadBytes = audio.MaxSizeBytes + 1<<20

// Submitter is the part of the orchestrator the HTTP host needs.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (types.Meeting, error)
}

// ProviderSwitch reads and changes the summarization provider selection.
type ProviderSwitch interface {
	Current() (string, bool)
	Switch(name string) error
	SetFallback(enabled bool)
}

type Sweeper interface {
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
}

type Deps struct {
	Store     store.Store
	Submitter Submitter
	Manager   *lifecycle.Manager
	Providers ProviderSwitch
	Sweeper   Sweeper
	Ingestor  *inbox.Ingestor
	// ImportDir confines manifest imports; manifest paths outside it are rejected.
	ImportDir string
}

type Server struct {
	deps Deps
	log  *logger.Logger
}

func NewServer(deps Deps, log *logger.Logger) *Server {
	return &Server{deps: deps, log: log}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /meetings", s.handleSubmit)
	mux.HandleFunc("GET /meetings", s.handleList)
	mux.HandleFunc("GET /meetings/export", s.handleExport)
	mux.HandleFunc("POST /meetings/import", s.handleImport)
	mux.HandleFunc("GET /meetings/{id}", s.handleGet)
	mux.HandleFunc("GET /meetings/{id}/report", s.handleReport)
	mux.HandleFunc("GET /admin/summarizer", s.handleGetProvider)
	mux.HandleFunc("PUT /admin/summarizer", s.handleSetProvider)
	mux.HandleFunc("PUT /owners/{id}/retention", s.handleRetention)
	mux.HandleFunc("POST /admin/retention/sweep", s.handleSweep)
	return withTracing(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.log.WithRequest(r).Debug("health check")
	fmt.Fprint(w, "ok")
}

// handleSubmit accepts a multipart upload: owner, title, category and the
// recording in the "audio" part.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "submit")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	owner := strings.TrimSpace(r.FormValue("owner"))
	title := strings.TrimSpace(r.FormValue("title"))
	if owner == "" || title == "" {
		writeError(w, http.StatusBadRequest, "owner and title are required")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()
	if !audio.IsSupported(filepath.Ext(header.Filename)) {
		writeError(w, http.StatusBadRequest, "unsupported audio format")
		return
	}

	tmp := s.deps.Manager.TempName(owner, header.Filename)
	if err := saveUpload(file, tmp); err != nil {
		reqLog.WithError(err).Error("failed to store upload")
		s.deps.Manager.CleanupIntermediate(tmp)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	m, err := s.deps.Submitter.Submit(r.Context(), pipeline.Submission{
		OwnerID:   owner,
		Title:     title,
		Category:  strings.ToUpper(strings.TrimSpace(r.FormValue("category"))),
		AudioPath: tmp,
		SourceKey: fmt.Sprintf("%s:%d", header.Filename, header.Size),
	})
	if err != nil {
		s.deps.Manager.CleanupIntermediate(tmp)
		switch {
		case errors.Is(err, pipeline.ErrDuplicateSubmission):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrInvalidUpdate):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			reqLog.WithError(err).Error("submit failed")
			writeError(w, http.StatusInternalServerError, "failed to submit meeting")
		}
		return
	}
	reqLog.WithField("meeting_id", m.ID).Info("meeting submitted")
	writeJSON(w, http.StatusAccepted, m)
}

func saveUpload(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}
	meetings, err := s.deps.Store.ListMeetings(r.Context(), owner)
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("list meetings failed")
		writeError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}
	writeJSON(w, http.StatusOK, meetings)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMeeting(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) loadMeeting(w http.ResponseWriter, r *http.Request) (types.Meeting, bool) {
	m, err := s.deps.Store.GetMeeting(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "meeting not found")
		return m, false
	case err != nil:
		s.log.WithRequest(r).WithError(err).Error("get meeting failed")
		writeError(w, http.StatusInternalServerError, "failed to load meeting")
		return m, false
	}
	return m, true
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	m, ok := s.loadMeeting(w, r)
	if !ok {
		return
	}
	if m.Status != types.StatusCompleted {
		writeError(w, http.StatusConflict, "meeting is not completed")
		return
	}
	dir, err := os.MkdirTemp("", "report-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, m.ID+".docx")
	if err := report.WriteDocx(m, path); err != nil {
		s.log.WithRequest(r).WithError(err).Error("report failed")
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.docx"`, m.ID))
	http.ServeFile(w, r, path)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "missing owner")
		return
	}
	meetings, err := s.deps.Store.ListMeetings(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}
	var buf bytes.Buffer
	if err := workbook.Export(&buf, meetings); err != nil {
		s.log.WithRequest(r).WithError(err).Error("export failed")
		writeError(w, http.StatusInternalServerError, "failed to export meetings")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="meetings.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

type importRequest struct {
	Path  string `json:"path"`
	Owner string `json:"owner"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	path, ok := s.resolveImport(req.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, "manifest must be inside the import directory")
		return
	}
	res, err := s.deps.Ingestor.IngestManifest(r.Context(), path, "", req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) resolveImport(p string) (string, bool) {
	if s.deps.ImportDir == "" {
		return "", false
	}
	base, err := filepath.Abs(s.deps.ImportDir)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	rel, err := filepath.Rel(base, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(base, rel), true
}

type providerState struct {
	Provider string `json:"provider"`
	Fallback bool   `json:"fallback"`
}

type providerUpdate struct {
	Provider string `json:"provider"`
	Fallback *bool  `json:"fallback"`
}

func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	name, fallback := s.deps.Providers.Current()
	writeJSON(w, http.StatusOK, providerState{Provider: name, Fallback: fallback})
}

func (s *Server) handleSetProvider(w http.ResponseWriter, r *http.Request) {
	var req providerUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Provider != "" {
		if err := s.deps.Providers.Switch(req.Provider); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Fallback != nil {
		s.deps.Providers.SetFallback(*req.Fallback)
	}
	s.log.WithRequest(r).WithField("provider", req.Provider).Info("summarizer settings updated")
	s.handleGetProvider(w, r)
}

type retentionRequest struct {
	Days *int `json:"days"`
}

func (s *Server) handleRetention(w http.ResponseWriter, r *http.Request) {
	var req retentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	owner := r.PathValue("id")
	if err := s.deps.Store.SetRetentionDays(r.Context(), owner, req.Days); err != nil {
		if errors.Is(err, store.ErrInvalidUpdate) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save retention")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "days": req.Days})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Sweeper.Sweep(r.Context())
	if err != nil {
		s.log.WithRequest(r).WithError(err).Error("sweep failed")
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if span.SpanContext().HasTraceID() {
			sw.Header().Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
