// ABOUTME: Sample rate conversion package
// ABOUTME: Stateful linear interpolation across consecutive batches
// Package resample converts interleaved int32 samples between rates.
//
// A Resampler keeps the last input frame and its fractional position, so a
// stream cut into batches resamples the same as one contiguous buffer.
// Equal rates are a straight copy.
//
// Example:
//
//	r := resample.New(22050, 44100, 2)
//	out := make([]int32, r.OutputSamplesNeeded(len(in)))
//	n := r.Resample(in, out)
package resample
