package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"metricd/pkg/types"
)

func dialStream(t *testing.T, srv *httptest.Server, experiment string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stream/" + experiment
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) types.LogRequest {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev types.LogRequest
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestStreamDeliversLiveEvents(t *testing.T) {
	svc := newMockService()
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn := dialStream(t, srv, "mnist")
	defer conn.Close()

	// let the server finish the subscribe before ingesting
	deadline := time.Now().Add(time.Second)
	for {
		svc.mu.Lock()
		n := len(svc.subs["mnist"])
		svc.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.Ingest(types.LogRequest{Experiment: "mnist", Step: 7, Metrics: map[string]any{"loss": 0.1}})

	ev := readEvent(t, conn)
	if ev.Experiment != "mnist" || ev.Step != 7 {
		t.Fatalf("event = %+v", ev)
	}
	if v, ok := ev.Metrics["loss"]; !ok || v.(float64) != 0.1 {
		t.Fatalf("metrics = %v", ev.Metrics)
	}
}

func TestStreamUnsubscribesOnDisconnect(t *testing.T) {
	svc := newMockService()
	srv := httptest.NewServer(NewMux(svc))
	defer srv.Close()

	conn := dialStream(t, srv, "mnist")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		svc.mu.Lock()
		n := len(svc.subs["mnist"])
		svc.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("subscriber was not removed after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
