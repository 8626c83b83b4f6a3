// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the wave Format record and sample conversion functions
// Package audio provides the audio format descriptor shared by the wire
// codec, the codec collaborator and the host application.
//
// Format mirrors a wave format record: tag, channels, sample rate, byte
// rate, block alignment, bits per sample and an opaque trailer.
//
// Samples moving between decoders and encoders are int32 values in 24-bit
// range; helpers convert to and from 8, 16 and 24 bit representations.
//
// Example:
//
//	src := audio.NewPCM(44100, 2, 16)
//	frameBytes := src.FrameSize() // 4
package audio
