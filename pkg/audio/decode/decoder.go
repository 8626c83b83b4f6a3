// ABOUTME: Decoder interface definition
// ABOUTME: Decoders append int32 samples to a caller owned slice
package decode

// Decoder decodes audio bytes to PCM int32 samples
type Decoder interface {
	// Decode appends the samples in data to dst and returns the result.
	// Trailing bytes that do not form a whole sample are ignored.
	Decode(dst []int32, data []byte) ([]int32, error)

	Close() error
}
