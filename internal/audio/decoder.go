package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM16 converts raw signed 16-bit little-endian PCM into normalized
// float32 mono samples in [-1, 1]. channels declares the interleaved channel
// count of the input; values below 1 are clamped to 1. For multi-channel
// input only the first channel of each frame is kept -- the playback target
// is mono and the backend's left channel is authoritative, so this is an
// extraction, not a downmix.
//
// Trailing bytes that do not form a complete frame are discarded. Empty
// input yields an empty (non-nil) slice.
func DecodePCM16(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}

	frameBytes := 2 * channels
	frames := len(data) / frameBytes

	samples := make([]float32, frames)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*frameBytes : i*frameBytes+2]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// SamplesToPCM16 converts normalized float32 samples to 16-bit little-endian
// PCM bytes. Samples are clamped to [-1, 1] before conversion.
func SamplesToPCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(clamped*32767)))
	}
	return buf
}
