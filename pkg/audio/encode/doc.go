// ABOUTME: Audio encoder package for encoding PCM to client formats
// ABOUTME: Provides Encoder interface and implementations for PCM, Opus
// Package encode provides audio encoders for the formats a client can
// negotiate.
//
// Supports: PCM (8, 16 and 24-bit), Opus
//
// All encoders accept interleaved int32 samples in 24-bit range and append
// the encoded bytes to a caller supplied buffer, so output can land
// directly after a PDU header.
//
// Example:
//
//	encoder, err := encode.NewPCM(audio.NewPCM(22050, 2, 16))
//	pdu, err = encoder.Encode(pdu, samples)
package encode
