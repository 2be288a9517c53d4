// Package sink defines the hardware audio-output capability consumed by the
// layer pool, plus the oto-backed and headless implementations of it.
package sink

// Shape describes the layout of a sample buffer handed to PushSamples.
type Shape struct {
	Frames   int
	Channels int
}

// MonoShape returns the shape of a mono buffer of n samples.
func MonoShape(n int) Shape {
	return Shape{Frames: n, Channels: 1}
}

// Sink is one exclusive audio output slot. It accepts normalized float32
// samples at a fixed rate and plays them asynchronously. Implementations
// must be safe for use from multiple goroutines.
//
// A sink that is bound and started idles on silence when its queue is empty,
// so newly pushed samples become audible without a restart.
type Sink interface {
	// Bind attaches the sink to a sample rate and flushes any queued audio.
	// Calling Bind again is the portable way to discard stale buffered
	// samples on backends without a native flush.
	Bind(sampleRate int) error

	// PushSamples enqueues normalized mono samples for playback.
	PushSamples(samples []float32, shape Shape) error

	// StartLoop begins (or resumes) the idle playback loop.
	StartLoop() error

	// Stop halts playback. Stopping a stopped sink is a no-op.
	Stop() error

	// Flush discards queued-but-unplayed samples without stopping playback.
	Flush() error

	// SetGain sets the output gain in [0, 1], applied by the device, not by
	// rewriting sample data.
	SetGain(v float64)
	Gain() float64

	IsPlaying() bool
	IsReady() bool

	Close() error
}

// Engine owns the platform audio device and mints sinks. Each sink is
// exclusively owned by its caller; an engine never hands out the same sink
// twice.
type Engine interface {
	// SampleRate is the rate the engine's device was opened at. Sinks
	// reject Bind calls for any other rate.
	SampleRate() int

	NewSink() Sink

	Close() error
}
