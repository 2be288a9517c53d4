// Package layers arbitrates a fixed set of hardware audio sinks among named
// producers: melody, drums, combined mix, or any caller-chosen owner key.
package layers

import (
	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/audio"
	"github.com/promptdj/promptdj/internal/sink"
)

// Channel wraps exactly one hardware sink and mediates every interaction
// with it. Sink failures never escape: each operation reports success as a
// bool and logs the underlying error, so one bad device cannot take down
// the host loop driving it.
//
// Channels are not safe for concurrent use on their own; the owning Pool
// serializes access.
type Channel struct {
	index int
	out   sink.Sink
	log   *zap.Logger

	sampleRate  int
	initialized bool

	owner   string
	target  float64
	applied float64
	pending []float32

	// Seconds until a pending volume change is applied; meaningful only
	// while debounceArmed.
	debounceLeft  float64
	debounceArmed bool
}

func newChannel(index int, out sink.Sink, sampleRate int, log *zap.Logger) *Channel {
	return &Channel{
		index:      index,
		out:        out,
		log:        log,
		sampleRate: sampleRate,
		target:     1.0,
		applied:    1.0,
	}
}

// Index returns the channel's immutable slot number.
func (c *Channel) Index() int { return c.index }

// Owner returns the current owner key, empty when the channel is free.
func (c *Channel) Owner() string { return c.owner }

// Initialize binds the sink to a sample rate and starts the idle playback
// loop. Returns false when the device is not available; the caller may retry
// on a later submission. Calling it again re-binds cleanly, which also
// discards any stale queued audio.
func (c *Channel) Initialize(sampleRate int) bool {
	if err := c.out.Bind(sampleRate); err != nil {
		c.log.Warn("channel init failed",
			zap.Int("channel", c.index),
			zap.Int("sample_rate", sampleRate),
			zap.Error(err))
		c.initialized = false
		return false
	}
	c.sampleRate = sampleRate
	c.initialized = true

	if err := c.out.StartLoop(); err != nil {
		c.log.Warn("channel start failed", zap.Int("channel", c.index), zap.Error(err))
		return false
	}
	return true
}

// Submit enqueues normalized mono samples for playback. The channel
// initializes itself with its last-known sample rate if needed and restarts
// playback if it had stopped, so submitted audio is never silently dropped.
func (c *Channel) Submit(samples []float32) bool {
	if !c.initialized && !c.Initialize(c.sampleRate) {
		return false
	}
	if !c.out.IsPlaying() {
		if err := c.out.StartLoop(); err != nil {
			c.log.Warn("channel restart failed", zap.Int("channel", c.index), zap.Error(err))
			return false
		}
	}
	if err := c.out.PushSamples(samples, sink.MonoShape(len(samples))); err != nil {
		c.log.Warn("sample push failed",
			zap.Int("channel", c.index),
			zap.Int("samples", len(samples)),
			zap.Error(err))
		return false
	}
	return true
}

// SubmitBytes decodes raw PCM16LE and submits the result.
func (c *Channel) SubmitBytes(data []byte, channels int) bool {
	return c.Submit(audio.DecodePCM16(data, channels))
}

// Stop halts playback. Stopping a stopped channel is a no-op.
func (c *Channel) Stop() bool {
	if err := c.out.Stop(); err != nil {
		c.log.Warn("channel stop failed", zap.Int("channel", c.index), zap.Error(err))
		return false
	}
	return true
}

// Interrupt stops playback, flushes queued-but-unplayed samples, and resumes
// the idle loop. Used when new content must immediately replace whatever is
// queued.
func (c *Channel) Interrupt() bool {
	if !c.Stop() {
		return false
	}
	if err := c.out.Flush(); err != nil {
		// Fall back to re-bind flushing for backends without a working
		// flush primitive.
		if !c.Initialize(c.sampleRate) {
			return false
		}
		return true
	}
	if err := c.out.StartLoop(); err != nil {
		c.log.Warn("channel resume failed", zap.Int("channel", c.index), zap.Error(err))
		return false
	}
	return true
}

// SetVolume applies a clamped gain directly at the device. This is separate
// from the pool's sample-scaling volume path: device gain cannot express
// per-owner volume when a sink's playback state is shared across play/stop
// cycles, so the pool rescales sample data instead.
func (c *Channel) SetVolume(v float64) {
	c.out.SetGain(audio.ClampVolume(v))
}

// Volume returns the device gain.
func (c *Channel) Volume() float64 { return c.out.Gain() }

func (c *Channel) IsPlaying() bool { return c.out.IsPlaying() }

func (c *Channel) IsReady() bool { return c.initialized && c.out.IsReady() }

// reset returns the channel to its freshly-acquired state.
func (c *Channel) reset() {
	c.owner = ""
	c.target = 1.0
	c.applied = 1.0
	c.pending = nil
	c.debounceArmed = false
	c.debounceLeft = 0
}
