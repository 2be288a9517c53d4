package audio

import "time"

const (
	// DefaultSampleRate matches the backend's FluidSynth render rate.
	DefaultSampleRate = 44100

	// The monitor stream runs at the Opus-native rate regardless of the
	// playback rate; clips are resampled on the way out.
	MonitorSampleRate    = 48000
	MonitorFrameDuration = 20 * time.Millisecond
	MonitorFrameSize     = MonitorSampleRate / 50 // samples per 20ms mono frame
)
