package httpadapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

const (
	sseBuffer            = 16
	sseKeepAliveInterval = 15 * time.Second
)

// streamJobEvents relays job status transitions of one document as
// Server-Sent Events until the client goes away.
func (rt *Router) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported"})
		return
	}
	if rt.deps.Events == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "job events are not available"})
		return
	}

	documentID := r.PathValue("id")
	if err := domain.ValidateDocumentID(documentID); err != nil {
		writeError(w, err)
		return
	}
	events := make(chan domain.JobEvent, sseBuffer)
	unsubscribe, err := rt.deps.Events.SubscribeJobEvents(r.Context(), documentID, func(event domain.JobEvent) {
		select {
		case events <- event:
		default:
			slog.Warn("sse_event_dropped",
				"request_id", requestIDFromContext(r.Context()),
				"document_id", documentID,
				"job_id", event.JobID,
			)
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer func() {
		if err := unsubscribe(); err != nil {
			slog.Warn("sse_unsubscribe_failed", "document_id", documentID, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-events:
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("sse_encode_failed", "document_id", documentID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: job\ndata: %s\n\n", event.JobID, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
