// ABOUTME: Fixed-capacity circular sample buffer
// ABOUTME: Overwrites the oldest samples once full; writes never block
package waveform

import (
	"math"
	"sync"
)

const (
	minCapacity = 1024
	minSeconds  = 0.25
)

// CapacityFor returns the ring size holding the given seconds of history
func CapacityFor(sampleRate int, seconds float64) int {
	seconds = math.Max(minSeconds, seconds)
	return max(minCapacity, int(math.Floor(seconds*float64(sampleRate))))
}

// Ring is a circular buffer of float samples. The write cursor and filled
// count are guarded together so a reader always sees a consistent window.
type Ring struct {
	mu     sync.Mutex
	data   []float32
	cursor int
	filled int
}

// NewRing creates a ring with the given capacity
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{data: make([]float32, capacity)}
}

// Push appends samples, overwriting the oldest once full
func (r *Ring) Push(samples []float32) {
	if len(samples) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.data)
	if len(samples) >= n {
		copy(r.data, samples[len(samples)-n:])
		r.cursor = 0
		r.filled = n
		return
	}

	first := copy(r.data[r.cursor:], samples)
	copy(r.data, samples[first:])
	r.cursor = (r.cursor + len(samples)) % n
	r.filled = min(n, r.filled+len(samples))
}

// Clear resets the cursor and filled count without reallocating
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
	r.filled = 0
}

// Filled returns the number of valid samples
func (r *Ring) Filled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}

// Capacity returns the ring size
func (r *Ring) Capacity() int {
	return len(r.data)
}

// Snapshot copies the valid samples, oldest first
func (r *Ring) Snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Ring) snapshotLocked() []float32 {
	out := make([]float32, r.filled)
	start := (r.cursor - r.filled + len(r.data)) % len(r.data)
	first := copy(out, r.data[start:min(len(r.data), start+r.filled)])
	copy(out[first:], r.data[:r.filled-first])
	return out
}
