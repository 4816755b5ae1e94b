package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type observed struct {
	method string
	route  string
	status int
}

type recordingObserver struct {
	calls []observed
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.calls = append(o.calls, observed{method: method, route: route, status: status})
}

func TestWrap_SetsRequestIDHeader_WhenMissing(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Wrap(discardLogger(), "testsvc", mux, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got == "" {
		t.Fatalf("expected X-Request-Id response header")
	}
}

func TestWrap_PreservesRequestIDHeader_WhenProvided(t *testing.T) {
	var seen string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		seen, _ = RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := Wrap(discardLogger(), "testsvc", mux, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	req.Header.Set(HeaderRequestID, "rid-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "rid-123" {
		t.Fatalf("X-Request-Id=%q, want rid-123", got)
	}
	if seen != "rid-123" {
		t.Fatalf("context request id=%q, want rid-123", seen)
	}
}

func TestWrap_RecoversPanic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { panic("boom") })
	h := Wrap(discardLogger(), "testsvc", mux, nil)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type=%q, want application/json", ct)
	}
	if !strings.Contains(rec.Body.String(), rec.Header().Get(HeaderRequestID)) {
		t.Fatalf("expected request id in body: %s", rec.Body.String())
	}
}

func TestWrap_ObservesMatchedRoute(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs/{run_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	obs := &recordingObserver{}
	h := Wrap(discardLogger(), "testsvc", mux, obs)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/runs/abc", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(obs.calls) != 1 {
		t.Fatalf("observed %d calls, want 1", len(obs.calls))
	}
	got := obs.calls[0]
	if got.route != "GET /runs/{run_id}" || got.status != http.StatusNotFound || got.method != http.MethodGet {
		t.Fatalf("unexpected observation %+v", got)
	}
}

func TestReadyzWithChecks_OK(t *testing.T) {
	handler := ReadyzWithChecks("testsvc", ReadinessCheck{
		Name:  "always-ok",
		Check: func(ctx context.Context) error { return nil },
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.test/readyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"status\":\"ready\"") {
		t.Fatalf("expected ready status in response: %s", rec.Body.String())
	}
}

func TestReadyzWithChecks_Fail(t *testing.T) {
	handler := ReadyzWithChecks("testsvc", ReadinessCheck{
		Name:  "db",
		Check: WithTimeout(time.Second, func(ctx context.Context) error { return errors.New("down") }),
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.test/readyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "\"error\":\"down\"") {
		t.Fatalf("expected check error in response: %s", rec.Body.String())
	}
}

func TestRun_RequiresServiceAndAddr(t *testing.T) {
	if err := Run(context.Background(), discardLogger(), Config{Addr: ":0"}, http.NewServeMux()); err == nil {
		t.Fatalf("expected error for missing service")
	}
	if err := Run(context.Background(), discardLogger(), Config{Service: "svc"}, http.NewServeMux()); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
