package broker

import "time"

// ShutdownRequests is closed when the broker decides the process should
// exit: the producer finished and no subscriber remained through the grace
// period. The daemon treats it like a termination signal.
func (b *Broker) ShutdownRequests() <-chan struct{} {
	return b.shutdownCh
}

// Stop cancels any pending idle-shutdown timer. Called on daemon teardown.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelShutdownLocked()
}

// maybeArmShutdownLocked schedules a delayed shutdown when the broker is
// finished and unwatched. Conditions are re-checked when the timer fires,
// not at schedule time: a subscriber arriving inside the grace period must
// keep the broker alive.
func (b *Broker) maybeArmShutdownLocked(grace time.Duration) {
	if !b.finished || b.totalSubscribersLocked() != 0 {
		return
	}
	b.cancelShutdownLocked()
	b.pub.Publish(Event{Name: "shutdown_armed", Fields: map[string]any{"grace": grace.String()}})
	b.shutdownTimer = time.AfterFunc(grace, b.fireShutdown)
}

func (b *Broker) cancelShutdownLocked() {
	if b.shutdownTimer != nil {
		b.shutdownTimer.Stop()
		b.shutdownTimer = nil
	}
}

func (b *Broker) fireShutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.finished || b.totalSubscribersLocked() != 0 {
		return
	}
	b.pub.Publish(Event{Name: "shutdown_fired"})
	b.log.Info().Msg("idle shutdown: producer finished and no subscribers remain")
	b.shutdownOnce.Do(func() { close(b.shutdownCh) })
}
