// ABOUTME: Waveform history package
// ABOUTME: Circular sample buffer and min/max column rendering
// Package waveform keeps the most recent samples of the live signal and
// reduces them to one vertical segment per display column.
package waveform
