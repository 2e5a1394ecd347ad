// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for chunk decoders
package decode

// Decoder decodes transport chunks to normalized float samples
type Decoder interface {
	// Decode converts encoded audio data to samples in [-1, 1)
	Decode(data []byte) ([]float32, error)

	// Close releases decoder resources
	Close() error
}
