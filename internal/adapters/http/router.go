package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/rental-doc-intake/internal/config"
	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
)

const (
	ownerHeader    = "X-Owner-Id"
	maxUploadBytes = 32 << 20
	maxJSONBytes   = 4 << 20
)

// RequestMetrics records API level outcomes. Optional.
type RequestMetrics interface {
	RecordClassification(outcome string)
	RecordJobRequest(jobType string, err error)
}

type Dependencies struct {
	Ingestor   ports.DocumentIngestor
	Documents  ports.DocumentReader
	Fields     ports.ExtractedFieldReader
	Reminders  ports.ReminderReader
	Classifier ports.DocumentClassifier
	Extractor  ports.FieldExtractor
	Jobs       ports.JobScheduler
	Events     ports.JobEventStream
	Rules      ports.RuleCacheInvalidator
	Metrics    RequestMetrics
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("GET /v1/documents/{id}/reminders", rt.listReminders)
	mux.HandleFunc("GET /v1/documents/{id}/events", rt.streamJobEvents)
	mux.HandleFunc("POST /v1/classify", rt.classify)
	mux.HandleFunc("POST /v1/extract", rt.extract)
	mux.HandleFunc("POST /v1/jobs", rt.enqueueJob)
	mux.HandleFunc("POST /v1/rules/invalidate", rt.invalidateRules)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	ownerID := strings.TrimSpace(r.FormValue("owner_id"))
	if ownerID == "" {
		ownerID = strings.TrimSpace(r.Header.Get(ownerHeader))
	}

	doc, err := rt.deps.Ingestor.Upload(
		r.Context(),
		ownerID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	doc, err := rt.deps.Documents.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	fields := []domain.ExtractedField{}
	if rt.deps.Fields != nil {
		fields, err = rt.deps.Fields.ListExtractedFields(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document": doc,
		"fields":   fields,
	})
}

func (rt *Router) listReminders(w http.ResponseWriter, r *http.Request) {
	if rt.deps.Reminders == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "reminders are not available"})
		return
	}
	reminders, err := rt.deps.Reminders.ListByDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminders": reminders})
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	candidates, err := rt.deps.Classifier.ClassifyDocument(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		outcome := "matched"
		if len(candidates) == 0 {
			outcome = "no_match"
		}
		rt.deps.Metrics.RecordClassification(outcome)
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text           string `json:"text"`
		DocumentTypeID string `json:"document_type_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	fields, err := rt.deps.Extractor.ExtractFields(r.Context(), req.Text, req.DocumentTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (rt *Router) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type       string            `json:"type"`
		DocumentID string            `json:"document_id"`
		Payload    map[string]string `json:"payload"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	jobType, err := domain.ParseJobType(req.Type)
	if err == nil {
		var jobID string
		jobID, err = rt.deps.Jobs.EnqueueJob(r.Context(), jobType, req.DocumentID, req.Payload)
		if err == nil {
			rt.recordJobRequest(req.Type, nil)
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
			return
		}
	}
	rt.recordJobRequest(req.Type, err)
	writeError(w, err)
}

func (rt *Router) invalidateRules(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Rules.InvalidateRuleCache(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) recordJobRequest(jobType string, err error) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordJobRequest(jobType, err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("empty body"))
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
