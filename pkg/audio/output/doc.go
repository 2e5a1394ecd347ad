// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides Output interface with oto and silent implementations
// Package output provides audio playback sinks.
//
// Outputs pull PCM16 bytes from a reader at the device's pace. Oto plays
// through the system sound card; Silent consumes in real time without a
// device, which keeps the playback clock moving for headless runs.
//
// Example:
//
//	dev, err := output.OpenDevice(16000)
//	out := output.NewOto(dev)
//	err = out.Open(format, bus)
package output
