package agent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"metricd/pkg/types"
)

// client posts telemetry to the daemon. Every error path logs at debug
// and returns: delivery is strictly best-effort.
type client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func newClient(baseURL string, log zerolog.Logger) *client {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: time.Second},
		log:     log,
	}
}

func (c *client) buildRequest(experiment string, step int64, metrics map[string]any, stats *types.SysStats) types.LogRequest {
	return types.LogRequest{
		Experiment: experiment,
		Step:       step,
		Metrics:    metrics,
		SysStats:   stats,
	}
}

func (c *client) postLog(req types.LogRequest) {
	c.postJSON("/api/log", req)
}

func (c *client) postStatus(status string) {
	c.postJSON("/api/status", types.StatusRequest{Status: status})
}

func (c *client) postJSON(path string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("encode failed")
		return
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("post failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("daemon rejected payload")
	}
}
