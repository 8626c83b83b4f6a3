// ABOUTME: Audio decoder package for producer supplied PCM
// ABOUTME: Provides Decoder interface and the linear PCM implementation
// Package decode turns raw PCM bytes into int32 samples.
//
// Supports: PCM (8-bit unsigned, 16-bit and 24-bit signed little-endian)
//
// Decoders output int32 samples in 24-bit range so the resampler and
// encoders work on a single representation.
//
// Example:
//
//	decoder, err := decode.NewPCM(audio.NewPCM(44100, 2, 16))
//	samples, err := decoder.Decode(samples[:0], pcmBytes)
package decode
