// Package stream is the optional monitor output: it mirrors every clip the
// layer pool renders to HTTP and WebRTC listeners so the mix can be checked
// from a browser while the device plays.
package stream

import (
	"context"
	"sync"

	"github.com/promptdj/promptdj/internal/audio"
)

// Broadcaster fans out PCM frames from one source to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener. Returns a Listener that receives frames.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, 150), // ~3 seconds of buffer at 20ms/frame
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	close(l.done)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					// listener too slow, drop frame to keep broadcast moving
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Framer chops rendered clips into fixed 20ms mono frames at the monitor
// sample rate and feeds them to a broadcaster source channel. Its Tap method
// has the layer pool's monitor hook signature, so a Framer plugs straight
// into the pool.
type Framer struct {
	mu  sync.Mutex
	rem []int16
	out chan []int16
}

// NewFramer creates a framer. Source returns the channel to hand to
// Broadcaster.Run.
func NewFramer() *Framer {
	return &Framer{
		out: make(chan []int16, 512), // ~10 seconds of frames
	}
}

// Source returns the frame channel this framer fills.
func (f *Framer) Source() <-chan []int16 { return f.out }

// Tap accepts a rendered mono clip at any sample rate, converts it to the
// monitor rate, and emits complete frames. A partial trailing frame is held
// until the next clip. Frames beyond the channel's capacity are dropped.
func (f *Framer) Tap(samples []float32, sampleRate int) {
	if len(samples) == 0 {
		return
	}
	if sampleRate != audio.MonitorSampleRate {
		samples = audio.Resample(samples, sampleRate, audio.MonitorSampleRate)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		f.rem = append(f.rem, int16(s*32767))
	}

	for len(f.rem) >= audio.MonitorFrameSize {
		frame := make([]int16, audio.MonitorFrameSize)
		copy(frame, f.rem[:audio.MonitorFrameSize])
		f.rem = f.rem[audio.MonitorFrameSize:]
		select {
		case f.out <- frame:
		default:
			return // full, drop the rest of the clip
		}
	}
}

// Pending returns the number of buffered monitor frames.
func (f *Framer) Pending() int { return len(f.out) }
