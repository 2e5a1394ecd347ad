// ABOUTME: Audio encoder package for the recorder
// ABOUTME: Provides Encoder interface and implementations for Opus and PCM16
// Package encode provides the codecs the recorder writes into its containers.
//
// Supports: Opus (preferred, compressed) and PCM16 (fallback, uncompressed)
//
// Encoders accept normalized mono float samples. Opus consumes fixed 20ms
// frames; PCM accepts any length.
//
// Example:
//
//	encoder, err := encode.NewOpus(format, 128000)
//	packet, err := encoder.Encode(frame)
package encode
