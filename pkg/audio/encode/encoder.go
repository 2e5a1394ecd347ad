// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for recorder codecs
package encode

// Encoder encodes normalized float samples to codec packets
type Encoder interface {
	// Encode converts one frame of samples to encoded audio data
	Encode(samples []float32) ([]byte, error)

	// FrameSize is the number of samples Encode expects per call (0 = any)
	FrameSize() int

	// Close releases encoder resources
	Close() error
}
