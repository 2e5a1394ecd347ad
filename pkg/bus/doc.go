// ABOUTME: Audio bus package for fanning one signal out to several sinks
// ABOUTME: Routes rendered playback to the device, analyzer and encoder taps
// Package bus routes the playback signal to up to three sinks.
//
// The device output pulls PCM16 bytes from the Bus. Each pull renders the
// next block from the playback source, hands it to the taps hanging off the
// named "silent" branch (gain 0) and mixes the audible branch at the current
// gain into the bytes returned to the device. Taps therefore keep receiving
// live signal for exactly as long as the device keeps pulling.
package bus
