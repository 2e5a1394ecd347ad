// ABOUTME: Audio decoder package for the ingest stream
// ABOUTME: Provides the Decoder interface and the PCM16 implementation
// Package decode turns transport chunks into normalized float samples.
//
// Chunks are little-endian signed 16-bit mono PCM. Each sample is divided by
// 32768 so the output lies in [-1, 1). Chunks shorter than one sample carry
// no information and decode to nothing.
//
// Example:
//
//	decoder, err := decode.NewPCM16(audio.DefaultFormat())
//	samples, err := decoder.Decode(chunk)
package decode
