package broker

import (
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCapacity    = 1000
	defaultFinishGrace = 10 * time.Second
	defaultDetachGrace = 2 * time.Second
)

// Config encapsulates all tunables for Broker construction.
type Config struct {
	// Capacity bounds the per-experiment event cache.
	Capacity int
	// FinishGrace delays shutdown after the producer signals completion
	// with no subscribers connected.
	FinishGrace time.Duration
	// DetachGrace delays shutdown after the last subscriber disconnects
	// from an already-finished broker.
	DetachGrace time.Duration
	// Publisher receives lifecycle events; nil means drop them.
	Publisher EventPublisher
	// Logger for fan-out and shutdown diagnostics.
	Logger zerolog.Logger
}

// New constructs a Broker with package defaults.
func New() *Broker {
	return NewWithConfig(Config{})
}

// NewWithConfig constructs a Broker from Config, applying defaults for
// unset fields.
func NewWithConfig(cfg Config) *Broker {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.FinishGrace <= 0 {
		cfg.FinishGrace = defaultFinishGrace
	}
	if cfg.DetachGrace <= 0 {
		cfg.DetachGrace = defaultDetachGrace
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return &Broker{
		capacity:    cfg.Capacity,
		finishGrace: cfg.FinishGrace,
		detachGrace: cfg.DetachGrace,
		pub:         cfg.Publisher,
		log:         cfg.Logger,
		cache:       make(map[string]*ring),
		subs:        make(map[string][]Subscriber),
		shutdownCh:  make(chan struct{}),
	}
}
