package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

const spawnWaitTimeout = 10 * time.Second

// serverAlive probes the daemon address with a short TCP dial.
func serverAlive(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	conn, err := net.DialTimeout("tcp", u.Host, 200*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// spawnServer launches a detached daemon on the given address and waits
// until its health endpoint answers. The child outlives the training
// process so late viewers can still attach.
func spawnServer(baseURL, binary string, log zerolog.Logger) error {
	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse server url: %w", err)
	}
	if binary == "" {
		binary = "metricd"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return fmt.Errorf("locate daemon binary: %w", err)
	}

	cmd := exec.Command(path, "-addr", u.Host)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	detachProcess(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	// reparent to init; we never wait on the child
	if err := cmd.Process.Release(); err != nil {
		log.Debug().Err(err).Msg("release daemon process")
	}
	log.Info().Str("addr", u.Host).Msg("telemetry daemon started")

	if err := waitHTTP(baseURL+"/healthz", http.StatusOK, spawnWaitTimeout); err != nil {
		return err
	}
	return nil
}

// waitHTTP polls url until it returns want or the timeout elapses.
func waitHTTP(url string, want int, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == want {
				return nil
			}
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s to return %d", url, want)
		}
	}
}
