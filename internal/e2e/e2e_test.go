package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"metricd/internal/agent"
	"metricd/internal/broker"
)

// TestE2E_AgentToViewer drives the full pipeline in-process: a training
// agent buffers and ships metrics over HTTP, and a websocket viewer
// receives the replayed history plus live events.
func TestE2E_AgentToViewer(t *testing.T) {
	srv, _ := newServer(t, broker.Config{})

	a, err := agent.New(agent.Config{
		ServerURL:     srv.URL,
		Experiment:    "mnist",
		FlushInterval: 10 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("agent: %v", err)
	}
	a.Log(map[string]any{"loss": 0.9}, 1)
	a.Log(map[string]any{"loss": 0.7}, 2)
	a.Close()

	// viewer attaching after the fact sees the cached history
	conn := dialStream(t, srv, "mnist")
	if s := readStep(t, conn); s != 1 {
		t.Fatalf("replayed step = %d, want 1", s)
	}
	if s := readStep(t, conn); s != 2 {
		t.Fatalf("replayed step = %d, want 2", s)
	}

	// a second producer keeps streaming live
	resp, body := httpPostJSON(t, srv.URL+"/api/log", []byte(`{"experiment":"mnist","step":3,"metrics":{"loss":0.5}}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/log %d %s", resp.StatusCode, string(body))
	}
	if s := readStep(t, conn); s != 3 {
		t.Fatalf("live step = %d, want 3", s)
	}
}

// TestE2E_CacheEviction verifies the per-experiment cache keeps only the
// newest events once capacity is exceeded.
func TestE2E_CacheEviction(t *testing.T) {
	srv, _ := newServer(t, broker.Config{Capacity: 3})

	for i := 1; i <= 5; i++ {
		payload := fmt.Sprintf(`{"experiment":"big","step":%d,"metrics":{"loss":1}}`, i)
		resp, body := httpPostJSON(t, srv.URL+"/api/log", []byte(payload))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("/api/log %d %s", resp.StatusCode, string(body))
		}
	}

	conn := dialStream(t, srv, "big")
	for _, want := range []int64{3, 4, 5} {
		if s := readStep(t, conn); s != want {
			t.Fatalf("replayed step = %d, want %d", s, want)
		}
	}
}

// TestE2E_FinishedIdleShutdown verifies the broker requests shutdown after
// the producer finishes and the last viewer detaches.
func TestE2E_FinishedIdleShutdown(t *testing.T) {
	srv, b := newServer(t, broker.Config{
		FinishGrace: 50 * time.Millisecond,
		DetachGrace: 20 * time.Millisecond,
	})

	resp, body := httpPostJSON(t, srv.URL+"/api/log", []byte(`{"experiment":"e","step":1,"metrics":{"loss":1}}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/log %d %s", resp.StatusCode, string(body))
	}

	// a connected viewer holds the daemon alive past the finish grace
	conn := dialStream(t, srv, "e")
	if s := readStep(t, conn); s != 1 {
		t.Fatalf("replayed step = %d", s)
	}
	resp, body = httpPostJSON(t, srv.URL+"/api/status", []byte(`{"status":"finished"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/status %d %s", resp.StatusCode, string(body))
	}
	select {
	case <-b.ShutdownRequests():
		t.Fatal("shutdown requested while a viewer was connected")
	case <-time.After(150 * time.Millisecond):
	}

	conn.Close()
	select {
	case <-b.ShutdownRequests():
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown not requested after last viewer left")
	}
}

// TestE2E_ExperimentsAcrossProducers checks isolation between experiments.
func TestE2E_ExperimentsAcrossProducers(t *testing.T) {
	srv, _ := newServer(t, broker.Config{})

	for _, name := range []string{"alpha", "beta"} {
		payload := fmt.Sprintf(`{"experiment":%q,"step":1,"metrics":{"loss":1}}`, name)
		resp, body := httpPostJSON(t, srv.URL+"/api/log", []byte(payload))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("/api/log %d %s", resp.StatusCode, string(body))
		}
	}

	resp, body := httpGet(t, srv.URL+"/api/experiments")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/experiments %d %s", resp.StatusCode, string(body))
	}
	var out struct {
		Experiments []string `json:"experiments"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("json: %v body=%s", err, string(body))
	}
	if len(out.Experiments) != 2 || out.Experiments[0] != "alpha" || out.Experiments[1] != "beta" {
		t.Fatalf("experiments = %v", out.Experiments)
	}

	// viewers only see their own experiment
	connA := dialStream(t, srv, "alpha")
	if s := readStep(t, connA); s != 1 {
		t.Fatalf("alpha step = %d", s)
	}
	payload := `{"experiment":"beta","step":2,"metrics":{"loss":1}}`
	httpPostJSON(t, srv.URL+"/api/log", []byte(payload))

	_ = connA.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var ev map[string]any
	if err := connA.ReadJSON(&ev); err == nil {
		t.Fatalf("alpha viewer received another experiment's event: %v", ev)
	}
}
