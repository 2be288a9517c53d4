package layers

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/audio"
	"github.com/promptdj/promptdj/internal/sink"
)

const (
	// DefaultDebounceWindow is how long a volume change waits for the input
	// to settle before the buffered clip is re-rendered. Applying volume
	// means resubmitting the whole clip, so a drag gesture firing dozens of
	// changes per second would otherwise stutter the output.
	DefaultDebounceWindow = 150 * time.Millisecond

	// gainRampDuration is the smoothstep edge applied when a re-rendered
	// clip replaces one playing at a different gain.
	gainRampDuration = 5 * time.Millisecond
)

// Monitor receives a copy of every clip actually submitted to a sink,
// post volume scaling. It must not call back into the pool.
type Monitor func(samples []float32, sampleRate int)

// Option configures a Pool.
type Option func(*Pool)

// WithDebounceWindow overrides the volume debounce window.
func WithDebounceWindow(d time.Duration) Option {
	return func(p *Pool) { p.debounceWindow = d.Seconds() }
}

// WithMonitor installs a tap on submitted audio.
func WithMonitor(m Monitor) Option {
	return func(p *Pool) { p.monitor = m }
}

// Pool owns a fixed set of channels and hands them out to named producers.
// All methods execute to completion under one lock, preserving the
// run-to-completion ordering of a cooperative frame-driven host: operations
// within one owner are totally ordered by call order, and two owners racing
// for the last free channel resolve in call order.
type Pool struct {
	mu  sync.Mutex
	log *zap.Logger

	channels       []*Channel
	sampleRate     int
	debounceWindow float64 // seconds
	monitor        Monitor
	ready          bool
}

// NewPool constructs a pool of size channels, each wrapping its own sink
// minted from engine, and eagerly initializes every channel at sampleRate.
// A channel whose device is not wired up stays in the pool and retries on
// its next submission. Size is fixed for the life of the pool.
func NewPool(engine sink.Engine, size, sampleRate int, log *zap.Logger, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pool{
		log:            log,
		sampleRate:     sampleRate,
		debounceWindow: DefaultDebounceWindow.Seconds(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.channels = make([]*Channel, size)
	for i := range p.channels {
		ch := newChannel(i, engine.NewSink(), sampleRate, log)
		if !ch.Initialize(sampleRate) {
			log.Warn("channel not connected at startup", zap.Int("channel", i))
		}
		p.channels[i] = ch
	}
	p.ready = true

	log.Info("layer pool ready",
		zap.Int("channels", size),
		zap.Int("sample_rate", sampleRate))
	return p
}

// Acquire reserves a channel for owner. Acquisition is idempotent: an owner
// that already holds a channel gets the same index back. A full pool is a
// normal outcome under load, reported as ok=false; callers skip playback or
// retry after a release.
func (p *Pool) Acquire(owner string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if owner == "" {
		p.log.Warn("acquire with empty owner")
		return 0, false
	}

	for _, ch := range p.channels {
		if ch.owner == owner {
			return ch.index, true
		}
	}

	for _, ch := range p.channels {
		if ch.owner == "" {
			ch.reset()
			ch.owner = owner
			p.log.Info("channel acquired",
				zap.Int("channel", ch.index),
				zap.String("owner", owner))
			return ch.index, true
		}
	}

	p.log.Info("no free channel",
		zap.String("owner", owner),
		zap.Int("active", p.activeLocked()),
		zap.Int("size", len(p.channels)))
	return 0, false
}

// Release frees a channel by index. Releasing a free or out-of-range index
// is a no-op.
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked(index)
}

// ReleaseOwner frees the channel held by owner, if any.
func (p *Pool) ReleaseOwner(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch := p.byOwnerLocked(owner); ch != nil {
		p.releaseLocked(ch.index)
	}
}

// ReleaseAll frees every reserved channel; used on mode resets.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.channels {
		if ch.owner != "" {
			p.releaseLocked(ch.index)
		}
	}
}

func (p *Pool) releaseLocked(index int) {
	ch := p.at(index)
	if ch == nil || ch.owner == "" {
		return
	}
	owner := ch.owner
	ch.Stop()
	ch.reset()
	p.log.Info("channel released",
		zap.Int("channel", index),
		zap.String("owner", owner))
}

// Play decodes raw PCM16LE, scales it by the channel's applied volume, and
// submits it, superseding anything still queued on the sink. Playing on an
// unreserved index is a logged no-op.
func (p *Pool) Play(index int, data []byte, channels int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(p.at(index), audio.DecodePCM16(data, channels))
}

// PlayOwner is Play addressed by owner key.
func (p *Pool) PlayOwner(owner string, data []byte, channels int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(p.byOwnerLocked(owner), audio.DecodePCM16(data, channels))
}

// PlaySamples submits pre-decoded normalized samples.
func (p *Pool) PlaySamples(index int, samples []float32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked(p.at(index), samples)
}

func (p *Pool) playLocked(ch *Channel, samples []float32) bool {
	if ch == nil || ch.owner == "" {
		p.log.Warn("play on unreserved channel")
		return false
	}

	// A new clip makes an in-flight debounce moot: the full buffer is
	// being rendered anyway, so the latest target applies now.
	if ch.debounceArmed {
		ch.debounceArmed = false
		ch.applied = ch.target
	}

	ch.pending = samples
	scaled := audio.Scale(samples, ch.applied)

	// Reinitialize-before-play so stale queued audio can never be heard
	// mixed with the new clip.
	if !ch.Interrupt() {
		return false
	}
	if !ch.Submit(scaled) {
		return false
	}

	if p.monitor != nil {
		p.monitor(scaled, p.sampleRate)
	}
	return true
}

// Stop halts playback on a channel without releasing it.
func (p *Pool) Stop(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch := p.at(index); ch != nil && ch.owner != "" {
		ch.Stop()
	}
}

// StopOwner halts playback on the channel held by owner.
func (p *Pool) StopOwner(owner string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch := p.byOwnerLocked(owner); ch != nil {
		ch.Stop()
	}
}

// StopAll halts playback on every reserved channel.
func (p *Pool) StopAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.channels {
		if ch.owner != "" {
			ch.Stop()
		}
	}
}

// SetVolume stores a clamped target volume for the channel. When the channel
// holds previously submitted audio the change is debounced: the timer
// restarts on every call and only the last value is ever rendered. With
// nothing buffered yet the change applies immediately and takes effect on
// the next play.
func (p *Pool) SetVolume(index int, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setVolumeLocked(p.at(index), v)
}

// SetVolumeOwner is SetVolume addressed by owner key.
func (p *Pool) SetVolumeOwner(owner string, v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setVolumeLocked(p.byOwnerLocked(owner), v)
}

func (p *Pool) setVolumeLocked(ch *Channel, v float64) {
	if ch == nil || ch.owner == "" {
		p.log.Warn("volume change on unreserved channel")
		return
	}

	ch.target = audio.ClampVolume(v)
	if ch.pending == nil {
		ch.applied = ch.target
		return
	}
	ch.debounceArmed = true
	ch.debounceLeft = p.debounceWindow
}

// Volume returns the channel's target volume.
func (p *Pool) Volume(index int) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch := p.at(index); ch != nil {
		return ch.target
	}
	return 0
}

// VolumeOwner returns the target volume for the channel held by owner.
func (p *Pool) VolumeOwner(owner string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ch := p.byOwnerLocked(owner); ch != nil {
		return ch.target
	}
	return 0
}

// Tick advances debounce countdowns by dt seconds. The host calls it once
// per frame; there are no timers anywhere else in the pool. When a countdown
// expires the retained clip is re-rendered at the settled target volume with
// a short gain ramp and resubmitted.
func (p *Pool) Tick(dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.channels {
		if !ch.debounceArmed {
			continue
		}
		ch.debounceLeft -= dt
		if ch.debounceLeft > 0 {
			continue
		}

		ch.debounceArmed = false
		from := ch.applied
		ch.applied = ch.target
		if ch.pending == nil {
			continue
		}

		ramp := p.sampleRate * int(gainRampDuration.Milliseconds()) / 1000
		scaled := audio.ScaleRamped(ch.pending, from, ch.applied, ramp)
		if !ch.Interrupt() || !ch.Submit(scaled) {
			continue
		}
		if p.monitor != nil {
			p.monitor(scaled, p.sampleRate)
		}
		p.log.Debug("volume applied",
			zap.Int("channel", ch.index),
			zap.Float64("volume", ch.applied))
	}
}

// IsReady reports whether pool construction finished.
func (p *Pool) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Size returns the fixed channel count.
func (p *Pool) Size() int { return len(p.channels) }

// ActiveCount returns the number of reserved channels.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeLocked()
}

// AvailableCount returns the number of free channels.
func (p *Pool) AvailableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels) - p.activeLocked()
}

// OwnerOf returns the owner holding a channel index.
func (p *Pool) OwnerOf(index int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.at(index)
	if ch == nil || ch.owner == "" {
		return "", false
	}
	return ch.owner, true
}

// HasOwner reports whether owner currently holds a channel.
func (p *Pool) HasOwner(owner string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byOwnerLocked(owner) != nil
}

// Status renders a human-readable per-channel dump.
func (p *Pool) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "layer pool: %d/%d reserved\n", p.activeLocked(), len(p.channels))
	for _, ch := range p.channels {
		conn := "disconnected"
		if ch.IsReady() {
			conn = "connected"
		}
		state := "free"
		if ch.owner != "" {
			state = fmt.Sprintf("reserved owner=%s", ch.owner)
		}
		buffered := ""
		if ch.pending != nil {
			buffered = " buffered"
		}
		fmt.Fprintf(&b, "  [%d] %s %s vol=%d%%%s\n",
			ch.index, conn, state, int(math.Round(ch.target*100)), buffered)
	}
	return b.String()
}

func (p *Pool) activeLocked() int {
	n := 0
	for _, ch := range p.channels {
		if ch.owner != "" {
			n++
		}
	}
	return n
}

func (p *Pool) at(index int) *Channel {
	if index < 0 || index >= len(p.channels) {
		return nil
	}
	return p.channels[index]
}

func (p *Pool) byOwnerLocked(owner string) *Channel {
	if owner == "" {
		return nil
	}
	for _, ch := range p.channels {
		if ch.owner == owner {
			return ch
		}
	}
	return nil
}
