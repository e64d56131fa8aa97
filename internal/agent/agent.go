package agent

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metricd/internal/sysstats"
)

const (
	defaultFlushInterval = time.Second
	defaultCloseTimeout  = 2 * time.Second
)

// Config controls a telemetry agent. Zero values get defaults from New.
type Config struct {
	// ServerURL is the daemon base URL, e.g. "http://127.0.0.1:8787".
	ServerURL string
	// Experiment names the stream all events are published under.
	Experiment string
	// ModelInfo is an optional architecture description attached to the
	// first delivered event only.
	ModelInfo map[string]any
	// FlushInterval is how often the worker drains the queue.
	FlushInterval time.Duration
	// SpawnServer launches a daemon when none answers on ServerURL.
	SpawnServer bool
	// ServerBinary overrides the daemon executable path for spawning.
	ServerBinary string
	// CloseTimeout bounds how long Close waits for the worker to drain.
	CloseTimeout time.Duration

	Logger zerolog.Logger
}

// queued is one pending event: the caller's metrics plus the step they
// were recorded at.
type queued struct {
	step    int64
	metrics map[string]any
}

// Agent buffers metric events and delivers them in the background. Log
// never blocks on the network; all delivery errors are swallowed so
// telemetry can never take down a training run.
type Agent struct {
	cfg    Config
	client *client
	stats  *sysstats.Collector
	log    zerolog.Logger

	mu       sync.Mutex
	queue    []queued
	closed   bool
	sentInfo bool

	stop chan struct{}
	done chan struct{}
}

// New builds an agent. If cfg.SpawnServer is set and nothing answers on
// ServerURL, a daemon is launched and awaited before New returns.
func New(cfg Config) (*Agent, error) {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://127.0.0.1:8787"
	}
	if cfg.Experiment == "" {
		cfg.Experiment = "default"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}

	if cfg.SpawnServer && !serverAlive(cfg.ServerURL) {
		if err := spawnServer(cfg.ServerURL, cfg.ServerBinary, cfg.Logger); err != nil {
			// spawn failure is not fatal: the agent degrades to
			// queueing into the void, same as any network outage
			cfg.Logger.Warn().Err(err).Msg("could not start telemetry daemon")
		}
	}

	a := &Agent{
		cfg:    cfg,
		client: newClient(cfg.ServerURL, cfg.Logger),
		stats:  sysstats.NewCollector(),
		log:    cfg.Logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.run()
	return a, nil
}

// Log records one metric event. It appends to the in-memory queue and
// returns immediately.
func (a *Agent) Log(metrics map[string]any, step int64) {
	cp := make(map[string]any, len(metrics))
	for k, v := range metrics {
		cp[k] = v
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.queue = append(a.queue, queued{step: step, metrics: cp})
}

// run drains the queue every FlushInterval until stopped.
func (a *Agent) run() {
	defer close(a.done)
	t := time.NewTicker(a.cfg.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			a.drain()
		case <-a.stop:
			return
		}
	}
}

// drain ships every queued event in order. One system-stats sample is
// taken per pass and attached to each event in it.
func (a *Agent) drain() {
	a.mu.Lock()
	batch := a.queue
	a.queue = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	stats := a.stats.Collect()
	for _, q := range batch {
		req := a.client.buildRequest(a.cfg.Experiment, q.step, q.metrics, stats)
		a.mu.Lock()
		if !a.sentInfo && a.cfg.ModelInfo != nil {
			req.ModelInfo = a.cfg.ModelInfo
			a.sentInfo = true
		}
		a.mu.Unlock()
		a.client.postLog(req)
	}
}

// Close stops the worker, performs a final synchronous drain, and tells
// the daemon the producer is finished. Safe to call once; Log calls after
// Close are dropped.
func (a *Agent) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.stop)
	select {
	case <-a.done:
	case <-time.After(a.cfg.CloseTimeout):
		a.log.Debug().Msg("worker did not stop in time")
	}

	a.drain()
	a.client.postStatus("finished")
	a.stats.Close()
}
