package broker

import "metricd/pkg/types"

// ring is a fixed-capacity, insertion-ordered buffer of cached payloads.
// Once full, pushing evicts the oldest entry.
type ring struct {
	buf  []types.LogRequest
	head int // index of the oldest entry
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]types.LogRequest, capacity)}
}

// push appends v, reporting whether an older entry was evicted.
func (r *ring) push(v types.LogRequest) (evicted bool) {
	if r.n < len(r.buf) {
		r.buf[(r.head+r.n)%len(r.buf)] = v
		r.n++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// snapshot returns the cached payloads oldest-first.
func (r *ring) snapshot() []types.LogRequest {
	out := make([]types.LogRequest, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.n }
