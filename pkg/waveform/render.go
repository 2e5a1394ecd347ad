// ABOUTME: Min/max waveform rendering
// ABOUTME: Reduces the ring window to one vertical segment per column
package waveform

import (
	"math"
	"sync"
	"time"
)

// Column is one vertical segment in output coordinates
type Column struct {
	X       int
	YTop    float64
	YBottom float64
}

// Drawable is the render result for a width x height surface
type Drawable struct {
	Width   int
	Height  int
	CenterY float64
	Columns []Column // empty when there is no signal; draw the center line only
}

// Empty reports whether only the center line should be drawn
func (d Drawable) Empty() bool {
	return len(d.Columns) == 0
}

// Render maps the filled window onto width columns. Each column spans the
// min and max of its proportional slice of samples. Render never mutates the ring.
func (r *Ring) Render(width, height int) Drawable {
	d := Drawable{Width: width, Height: height, CenterY: float64(height) / 2}
	if width <= 0 || height <= 0 {
		return d
	}

	samples := r.Snapshot()
	n := len(samples)
	if n == 0 {
		return d
	}

	h := float64(height)
	d.Columns = make([]Column, 0, width)
	for x := 0; x < width; x++ {
		i0 := int(math.Floor(float64(x) / float64(width) * float64(n)))
		i1 := min(n, int(math.Floor(float64(x+1)/float64(width)*float64(n))))
		if i1 <= i0 {
			// More columns than samples: reuse the nearest sample
			i1 = min(n, i0+1)
			if i0 >= n {
				i0 = n - 1
			}
		}

		lo, hi := float32(1), float32(-1)
		for _, s := range samples[i0:i1] {
			lo = min(lo, s)
			hi = max(hi, s)
		}

		d.Columns = append(d.Columns, Column{
			X:       x,
			YTop:    (1 - (float64(hi)+1)/2) * h,
			YBottom: (1 - (float64(lo)+1)/2) * h,
		})
	}
	return d
}

// Renderer rate-limits rendering to a target frame rate
type Renderer struct {
	ring  *Ring
	every time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewRenderer creates a renderer drawing at most fps frames per second
func NewRenderer(ring *Ring, fps int) *Renderer {
	if fps <= 0 {
		fps = 30
	}
	return &Renderer{ring: ring, every: time.Second / time.Duration(fps)}
}

// Frame renders if a frame is due at now; ok is false when the caller should
// keep showing its previous frame
func (rd *Renderer) Frame(now time.Time, width, height int) (Drawable, bool) {
	rd.mu.Lock()
	if !rd.last.IsZero() && now.Sub(rd.last) < rd.every {
		rd.mu.Unlock()
		return Drawable{}, false
	}
	rd.last = now
	rd.mu.Unlock()

	return rd.ring.Render(width, height), true
}
