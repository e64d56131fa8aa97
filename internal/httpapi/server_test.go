package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"metricd/internal/broker"
	"metricd/pkg/types"
)

// mockService records calls for handler assertions.
type mockService struct {
	mu        sync.Mutex
	ingested  []types.LogRequest
	finished  bool
	cleared   bool
	deleted   []string
	deleteErr error
	subs      map[string][]broker.Subscriber
	ready     bool
}

func newMockService() *mockService {
	return &mockService{subs: map[string][]broker.Subscriber{}, ready: true}
}

func (m *mockService) Ingest(req types.LogRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, req)
	for _, s := range m.subs[req.Experiment] {
		_ = s.Send(req)
	}
}

func (m *mockService) Subscribe(experiment string, sub broker.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[experiment] = append(m.subs[experiment], sub)
	return nil
}

func (m *mockService) Unsubscribe(experiment string, sub broker.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.subs[experiment][:0]
	for _, s := range m.subs[experiment] {
		if s != sub {
			kept = append(kept, s)
		}
	}
	m.subs[experiment] = kept
}

func (m *mockService) Experiments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range m.ingested {
		seen[r.Experiment] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *mockService) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	m.ingested = nil
}

func (m *mockService) Delete(experiment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, experiment)
	return nil
}

func (m *mockService) SignalFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
}

func (m *mockService) Ready() bool { return m.ready }

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLogEndpoint(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	rec := postJSON(t, mux, "/api/log", types.LogRequest{
		Experiment: "mnist",
		Step:       3,
		Metrics:    map[string]any{"loss": 0.42},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp types.OKResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status field = %q", resp.Status)
	}
	if len(svc.ingested) != 1 || svc.ingested[0].Experiment != "mnist" {
		t.Fatalf("ingested = %+v", svc.ingested)
	}
}

func TestLogRequiresExperiment(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	rec := postJSON(t, mux, "/api/log", types.LogRequest{Step: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if er.Code != http.StatusBadRequest || er.Error == "" {
		t.Fatalf("error payload = %+v", er)
	}
}

func TestLogRejectsWrongContentType(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/log", bytes.NewReader([]byte(`{"experiment":"e"}`)))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestLogRejectsMalformedJSON(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/log", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusFinished(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	rec := postJSON(t, mux, "/api/status", types.StatusRequest{Status: "finished"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !svc.finished {
		t.Fatal("finished signal was not forwarded")
	}
}

func TestStatusOtherValuesIgnored(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	rec := postJSON(t, mux, "/api/status", types.StatusRequest{Status: "running"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.finished {
		t.Fatal("non-finished status should not signal")
	}
}

func TestExperimentsEndpoint(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	postJSON(t, mux, "/api/log", types.LogRequest{Experiment: "b", Metrics: map[string]any{}})
	postJSON(t, mux, "/api/log", types.LogRequest{Experiment: "a", Metrics: map[string]any{}})

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp types.ExperimentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Experiments) != 2 || resp.Experiments[0] != "a" || resp.Experiments[1] != "b" {
		t.Fatalf("experiments = %v", resp.Experiments)
	}
}

func TestClearEndpoint(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	rec := postJSON(t, mux, "/api/experiments/clear", struct{}{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !svc.cleared {
		t.Fatal("clear was not forwarded")
	}
}

func TestDeleteEndpoint(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/experiments/mnist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(svc.deleted) != 1 || svc.deleted[0] != "mnist" {
		t.Fatalf("deleted = %v", svc.deleted)
	}
}

func TestDeleteUnknownReturns404(t *testing.T) {
	svc := newMockService()
	svc.deleteErr = broker.ErrExperimentNotFound("ghost")
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/experiments/ghost", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rec.Code)
	}

	svc.ready = false
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz while loading = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newMockService()
	mux := NewMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
}
