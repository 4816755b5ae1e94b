package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bindflow/runledger/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(body)
}

func TestLedgerCounters(t *testing.T) {
	m := New()
	m.RunCreated()
	m.RunCreated()
	m.StatusChanged(domain.RunStatusPending, domain.RunStatusRunning)
	m.RunsDeleted(3)
	m.ReconcilePass(2, 1, 0)

	out := scrape(t, m)
	for _, want := range []string{
		"runledger_runs_created_total 2",
		`runledger_status_transitions_total{from="pending",to="running"} 1`,
		"runledger_runs_deleted_total 3",
		"runledger_reconcile_passes_total 1",
		`runledger_reconcile_outcomes_total{outcome="transition"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "GET /runs/{run_id}", http.StatusNotFound, 10*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	out := scrape(t, m)
	for _, want := range []string{
		`runledger_http_requests_total{method="GET",route="GET /runs/{run_id}",status="404"} 1`,
		`runledger_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}
