// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for all audio encoders
package encode

// Encoder encodes PCM int32 samples to a target format
type Encoder interface {
	// Encode appends the encoding of samples to dst and returns the result.
	// Stateful encoders may hold back samples until a full frame is available.
	Encode(dst []byte, samples []int32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
