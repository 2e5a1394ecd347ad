// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts mono float audio between sample rates
// Package resample provides streaming sample rate conversion.
//
// Uses linear interpolation and carries state across blocks, so a signal
// split into arbitrary blocks resamples the same as in one piece.
//
// Example:
//
//	r := resample.New(44100, 16000)
//	out := r.Process(block)
package resample
