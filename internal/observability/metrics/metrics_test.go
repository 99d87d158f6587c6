package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/domain"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestWorkerMetricsExposeJobAndCacheSeries(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.JobStarted(domain.JobTypeOCR)
	m.JobFinished(domain.JobTypeOCR, domain.JobStatusPending, 10*time.Millisecond)
	m.JobRetried(domain.JobTypeOCR)
	m.JobStarted(domain.JobTypeOCR)
	m.JobFinished(domain.JobTypeOCR, domain.JobStatusSuccess, 20*time.Millisecond)
	m.QueueDepth(3)
	m.RuleCacheLookup("classification", "hit")
	m.ResilienceRetry("postgres.rules.version")
	m.BreakerStateChanged("nats.publish", "open")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`intake_worker_jobs_total{job_type="ocr",service="worker",status="success"} 1`,
		`intake_worker_job_retries_total{job_type="ocr",service="worker"} 1`,
		`intake_worker_queue_depth{service="worker"} 3`,
		`intake_worker_jobs_in_flight{service="worker"} 0`,
		`intake_rules_cache_lookups_total{kind="classification",outcome="hit",service="worker"} 1`,
		`intake_resilience_retries_total{operation="postgres.rules.version",service="worker"} 1`,
		`intake_resilience_breaker_state{operation="nats.publish",service="worker"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing series %s in\n%s", want, body)
		}
	}
	if strings.Contains(body, `intake_worker_jobs_total{job_type="ocr",service="worker",status="pending"}`) {
		t.Fatalf("retried attempts must not count as finished jobs")
	}
}

func TestHTTPMetricsNormalizeDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	for _, path := range []string{"/v1/documents/a", "/v1/documents/b", "/v1/documents/a/events"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	m.RecordClassification("assigned")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`intake_http_requests_total{method="GET",path="/v1/documents/{document_id}",service="api",status="202"} 2`,
		`intake_http_requests_total{method="GET",path="/v1/documents/{document_id}/events",service="api",status="202"} 1`,
		`intake_classify_requests_total{outcome="assigned",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing series %s in\n%s", want, body)
		}
	}
}

func TestHTTPMetricsJobRequestResults(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordJobRequest("ocr", nil)
	m.RecordJobRequest("ocr", domain.WrapError(domain.ErrTemporary, "remote enqueue", errors.New("no responders")))
	m.RecordJobRequest("ocr", errors.New("boom"))

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`intake_jobs_requests_total{job_type="ocr",result="accepted",service="api"} 1`,
		`intake_jobs_requests_total{job_type="ocr",result="temporary",service="api"} 1`,
		`intake_jobs_requests_total{job_type="ocr",result="error",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing series %s in\n%s", want, body)
		}
	}
}
