package broker

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"metricd/pkg/types"
)

// Subscriber is one live viewer connection for an experiment. Send failures
// mark the connection dead; the broker closes and prunes it after the
// current fan-out pass.
type Subscriber interface {
	Send(payload types.LogRequest) error
	Close() error
}

// Broker owns the per-experiment event cache and subscriber registry. A
// single mutex serializes cache and registry mutations; fan-out happens
// under it, so a subscriber connecting mid-stream can never miss or
// double-receive an event between rehydration and live delivery.
type Broker struct {
	mu    sync.Mutex
	cache map[string]*ring
	subs  map[string][]Subscriber

	finished      bool
	shutdownTimer *time.Timer
	shutdownCh    chan struct{}
	shutdownOnce  sync.Once

	capacity    int
	finishGrace time.Duration
	detachGrace time.Duration
	pub         EventPublisher
	log         zerolog.Logger
}

// Ready reports whether the broker accepts traffic. It is constructed
// ready; it exists for the /readyz contract.
func (b *Broker) Ready() bool { return true }

// Ingest appends the payload to its experiment's bounded cache, then
// pushes it to every currently-subscribed connection in ingest order.
func (b *Broker) Ingest(req types.LogRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.cache[req.Experiment]
	if r == nil {
		r = newRing(b.capacity)
		b.cache[req.Experiment] = r
		b.pub.Publish(Event{Name: "experiment_created", Experiment: req.Experiment})
	}
	if r.push(req) {
		cacheEvictionsTotal.Inc()
	}
	eventsIngestedTotal.WithLabelValues(req.Experiment).Inc()

	subs := b.subs[req.Experiment]
	var dead []Subscriber
	for _, s := range subs {
		if err := s.Send(req); err != nil {
			dead = append(dead, s)
			fanoutFailuresTotal.Inc()
			b.log.Debug().Err(err).Str("experiment", req.Experiment).Msg("subscriber send failed")
		}
	}
	// prune dead connections only after the pass completes
	for _, s := range dead {
		b.removeSubscriberLocked(req.Experiment, s)
		_ = s.Close()
	}
}

// Subscribe registers sub for an experiment and immediately replays the
// full current cache in original order before any live event is delivered.
// A pending idle shutdown is cancelled.
func (b *Broker) Subscribe(experiment string, sub Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cancelShutdownLocked()
	b.subs[experiment] = append(b.subs[experiment], sub)
	subscribersGauge.Inc()
	b.pub.Publish(Event{Name: "subscriber_added", Experiment: experiment})

	if r := b.cache[experiment]; r != nil {
		for _, p := range r.snapshot() {
			if err := sub.Send(p); err != nil {
				b.removeSubscriberLocked(experiment, sub)
				return err
			}
		}
	}
	return nil
}

// Unsubscribe removes sub; the bookkeeping entry for the experiment is
// deleted when its last subscriber leaves. Cached metrics are untouched.
func (b *Broker) Unsubscribe(experiment string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeSubscriberLocked(experiment, sub)
	b.maybeArmShutdownLocked(b.detachGrace)
}

// Experiments returns all experiment names with at least one cached event,
// sorted for stable output.
func (b *Broker) Experiments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.cache))
	for name, r := range b.cache {
		if r.len() > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// SignalFinished marks the producer as done and starts idle-shutdown
// evaluation.
func (b *Broker) SignalFinished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = true
	b.pub.Publish(Event{Name: "producer_finished"})
	b.maybeArmShutdownLocked(b.finishGrace)
}

// ClearAll closes every open connection and drops all cached state. Any
// pending shutdown is cancelled: an operator reset implies the broker
// should keep serving.
func (b *Broker) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelShutdownLocked()
	for _, subs := range b.subs {
		for _, s := range subs {
			_ = s.Close()
			subscribersGauge.Dec()
		}
	}
	b.subs = make(map[string][]Subscriber)
	b.cache = make(map[string]*ring)
	b.pub.Publish(Event{Name: "cleared"})
}

// Delete drops one experiment's cached state and force-closes all of its
// connections; other experiments are untouched.
func (b *Broker) Delete(experiment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, hasCache := b.cache[experiment]
	subs, hasSubs := b.subs[experiment]
	if !hasCache && !hasSubs {
		return ErrExperimentNotFound(experiment)
	}
	for _, s := range subs {
		_ = s.Close()
		subscribersGauge.Dec()
	}
	delete(b.subs, experiment)
	delete(b.cache, experiment)
	b.pub.Publish(Event{Name: "experiment_deleted", Experiment: experiment})
	b.maybeArmShutdownLocked(b.detachGrace)
	return nil
}

func (b *Broker) removeSubscriberLocked(experiment string, sub Subscriber) {
	subs := b.subs[experiment]
	for i, s := range subs {
		if s == sub {
			b.subs[experiment] = append(subs[:i], subs[i+1:]...)
			subscribersGauge.Dec()
			b.pub.Publish(Event{Name: "subscriber_removed", Experiment: experiment})
			break
		}
	}
	if len(b.subs[experiment]) == 0 {
		delete(b.subs, experiment)
	}
}

func (b *Broker) totalSubscribersLocked() int {
	n := 0
	for _, subs := range b.subs {
		n += len(subs)
	}
	return n
}
