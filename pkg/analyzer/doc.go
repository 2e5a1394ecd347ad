// ABOUTME: Frequency analyzer package
// ABOUTME: Spectrum magnitudes for display loops
// Package analyzer exposes a smoothed byte spectrum of the live signal.
//
// Samples arrive through Write (a bus tap). Display loops call Frequency at
// their own rate; the FFT runs only when new samples arrived since the last
// call.
package analyzer
