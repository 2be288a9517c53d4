//go:build !headless

package sink

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// otoEngine opens one oto context for the process and mints player-backed
// sinks from it. oto allows a single context per process, so the engine is
// the only place a context is created.
type otoEngine struct {
	ctx  *oto.Context
	rate int
}

// NewEngine opens the platform audio device at the given sample rate.
func NewEngine(sampleRate int) (Engine, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	return &otoEngine{ctx: ctx, rate: sampleRate}, nil
}

func (e *otoEngine) SampleRate() int { return e.rate }

func (e *otoEngine) NewSink() Sink {
	return &otoSink{engine: e, gain: 1.0}
}

func (e *otoEngine) Close() error {
	// oto contexts cannot be closed; suspend keeps the device quiet.
	return e.ctx.Suspend()
}

// otoSink wraps one oto.Player pulling from a private sample queue. An empty
// queue reads as silence, which keeps the player in its idle loop between
// clips.
type otoSink struct {
	engine *otoEngine
	queue  sampleQueue

	mu     sync.Mutex
	player *oto.Player
	bound  bool
	closed bool
	gain   float64
}

func (s *otoSink) Bind(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if sampleRate != s.engine.rate {
		return fmt.Errorf("%w: got %d, engine at %d", ErrRateMismatch, sampleRate, s.engine.rate)
	}

	s.queue.flush()
	if s.player == nil {
		// Carry over whatever gain was set before binding.
		s.player = s.engine.ctx.NewPlayer(s)
		s.player.SetVolume(s.gain)
	}
	s.bound = true
	return nil
}

// Read feeds the oto player. Always fills p completely so playback never
// stalls; missing samples come out as silence.
func (s *otoSink) Read(p []byte) (int, error) {
	n := len(p) / 4
	samples := make([]float32, n)
	s.queue.pop(samples)

	for i, v := range samples {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return n * 4, nil
}

func (s *otoSink) PushSamples(samples []float32, shape Shape) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.bound {
		return ErrNotBound
	}
	if shape.Channels != 1 {
		return fmt.Errorf("%w: got %d channels", ErrBadShape, shape.Channels)
	}

	if shape.Frames < len(samples) {
		samples = samples[:shape.Frames]
	}
	s.queue.push(samples)
	return nil
}

func (s *otoSink) StartLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.bound {
		return ErrNotBound
	}
	if !s.player.IsPlaying() {
		s.player.Play()
	}
	return nil
}

func (s *otoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.player != nil && s.player.IsPlaying() {
		s.player.Pause()
	}
	return nil
}

func (s *otoSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.queue.flush()
	return nil
}

func (s *otoSink) SetGain(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.gain = v
	if s.player != nil {
		s.player.SetVolume(v)
	}
}

func (s *otoSink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

func (s *otoSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.player.IsPlaying()
}

func (s *otoSink) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound && !s.closed
}

func (s *otoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.bound = false
	s.queue.flush()
	if s.player != nil {
		return s.player.Close()
	}
	return nil
}
