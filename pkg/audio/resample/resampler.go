// ABOUTME: Streaming linear resampler for mono float samples
// ABOUTME: Keeps the last input sample so block boundaries stay continuous
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	ratio      float64

	// pos is the next output position in input samples, relative to the
	// start of the next block. -1 addresses prev.
	pos  float64
	prev float32
}

// New creates a resampler from inputRate to outputRate
func New(inputRate, outputRate int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Passthrough reports whether the rates match
func (r *Resampler) Passthrough() bool {
	return r.inputRate == r.outputRate
}

// Process converts one block and returns the output samples it completes
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if r.Passthrough() {
		return append([]float32(nil), in...)
	}

	n := len(in)
	out := make([]float32, 0, int(float64(n)/r.ratio)+2)
	at := func(i int) float32 {
		if i < 0 {
			return r.prev
		}
		return in[i]
	}

	for r.pos < float64(n-1) {
		i := int(math.Floor(r.pos))
		frac := float32(r.pos - float64(i))
		a, b := at(i), at(i+1)
		out = append(out, a+(b-a)*frac)
		r.pos += r.ratio
	}

	r.pos -= float64(n)
	r.prev = in[n-1]
	return out
}

// Reset clears the carried state
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
}
