// ABOUTME: Recorder package capturing the live signal into segments
// ABOUTME: WebM/Opus preferred with a WAV/PCM fallback
// Package recorder captures the bus signal and emits a finished, self-contained
// container file for every timeslice of captured audio.
//
// The Opus codec is preferred. When an Opus encoder cannot be built for the
// stream (for example an unsupported sample rate) the recorder falls back to
// uncompressed PCM in WAV instead of failing. Only the most recent segment is
// retained; older ones are released when superseded.
package recorder
