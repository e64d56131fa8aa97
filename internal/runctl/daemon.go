package runctl

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"metricd/pkg/types"
)

var jsonMarshal = json.Marshal

var httpClient = &http.Client{Timeout: 5 * time.Second}

func fnListExperiments(cmd *cobra.Command, cfg *Config) error {
	resp, err := httpClient.Get(cfg.ServerURL + "/api/experiments")
	if err != nil {
		return fmt.Errorf("reach daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return daemonError(resp)
	}
	var out types.ExperimentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(out.Experiments) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no experiments cached")
		return nil
	}
	for _, name := range out.Experiments {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}

func fnClear(cmd *cobra.Command, cfg *Config) error {
	resp, err := httpClient.Post(cfg.ServerURL+"/api/experiments/clear", "application/json", strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("reach daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return daemonError(resp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "cleared")
	return nil
}

func fnDelete(cmd *cobra.Command, cfg *Config, experiment string) error {
	req, err := http.NewRequest(http.MethodDelete, cfg.ServerURL+"/api/experiments/"+experiment, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reach daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return daemonError(resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", experiment)
	return nil
}

// fnWatch subscribes to the daemon's live stream and prints one JSON line
// per event until interrupted or the daemon closes the socket.
func fnWatch(cmd *cobra.Command, cfg *Config, experiment string) error {
	wsURL := strings.Replace(cfg.ServerURL, "http", "ws", 1) + "/ws/stream/" + experiment
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(msg))
		}
	}()

	select {
	case <-cmd.Context().Done():
		return nil
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return err
	}
}

func daemonError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er types.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		return fmt.Errorf("daemon: %s", er.Error)
	}
	return fmt.Errorf("daemon returned %d", resp.StatusCode)
}
