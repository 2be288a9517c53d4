package sink

import (
	"fmt"
	"sync"
)

// HeadlessEngine is a device-free Engine used on servers and in tests. Sinks
// record state transitions and queue samples without playing anything.
type HeadlessEngine struct {
	rate int
}

// NewHeadlessEngine creates an engine with no audio device behind it.
func NewHeadlessEngine(sampleRate int) *HeadlessEngine {
	return &HeadlessEngine{rate: sampleRate}
}

func (e *HeadlessEngine) SampleRate() int { return e.rate }

func (e *HeadlessEngine) NewSink() Sink {
	return &headlessSink{engine: e, gain: 1.0}
}

func (e *HeadlessEngine) Close() error { return nil }

type headlessSink struct {
	engine *HeadlessEngine
	queue  sampleQueue

	mu      sync.Mutex
	bound   bool
	playing bool
	closed  bool
	gain    float64
}

func (s *headlessSink) Bind(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if sampleRate != s.engine.rate {
		return fmt.Errorf("%w: got %d, engine at %d", ErrRateMismatch, sampleRate, s.engine.rate)
	}
	s.queue.flush()
	s.bound = true
	return nil
}

func (s *headlessSink) PushSamples(samples []float32, shape Shape) error {
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

func (s *headlessSink) StartLoop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.bound {
		return ErrNotBound
	}
	s.playing = true
	return nil
}

func (s *headlessSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.playing = false
	return nil
}

func (s *headlessSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.queue.flush()
	return nil
}

func (s *headlessSink) SetGain(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.gain = v
}

func (s *headlessSink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

func (s *headlessSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *headlessSink) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound && !s.closed
}

func (s *headlessSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.bound = false
	s.playing = false
	s.queue.flush()
	return nil
}

// Pending reports queued-but-unplayed samples; test hook.
func (s *headlessSink) Pending() int {
	return s.queue.pending()
}
