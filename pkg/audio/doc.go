// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides the shared audio types used by the streamtap pipeline.
//
// This package defines:
//   - Format: Describes the declared stream format (codec, sample rate, channels, bit depth)
//   - Buffer: One decoded chunk of normalized float samples in arrival order
//
// It also provides conversions between normalized float samples and PCM16,
// and between frame counts and durations at a given sample rate.
//
// Example:
//
//	format := audio.DefaultFormat()
//	buf := audio.Buffer{Seq: 1, Samples: samples, Format: format}
//	log.Printf("chunk lasts %v", buf.Duration())
package audio
