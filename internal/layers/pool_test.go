package layers

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/promptdj/promptdj/internal/sink"
)

func newTestPool(t *testing.T, size int, opts ...Option) *Pool {
	t.Helper()
	engine := sink.NewHeadlessEngine(44100)
	return NewPool(engine, size, 44100, zap.NewNop(), opts...)
}

// constClip returns n samples of a constant value, for checking what gain a
// submission was rendered at.
func constClip(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// --- Acquire / Release ---

func TestAcquireIdempotent(t *testing.T) {
	p := newTestPool(t, 4)

	idx1, ok := p.Acquire("melody")
	if !ok {
		t.Fatal("first acquire failed")
	}
	idx2, ok := p.Acquire("melody")
	if !ok {
		t.Fatal("second acquire failed")
	}
	if idx1 != idx2 {
		t.Errorf("repeated acquire returned %d then %d", idx1, idx2)
	}
	if got := p.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
}

func TestAcquireDistinctOwners(t *testing.T) {
	// Scenario A: three roles on a pool of four.
	p := newTestPool(t, 4)

	seen := map[int]string{}
	for _, owner := range []string{OwnerMelody, OwnerDrums, OwnerCombined} {
		idx, ok := p.Acquire(owner)
		if !ok {
			t.Fatalf("acquire %q failed", owner)
		}
		if prev, dup := seen[idx]; dup {
			t.Errorf("channel %d handed to both %q and %q", idx, prev, owner)
		}
		seen[idx] = owner
	}
	if got := p.AvailableCount(); got != 1 {
		t.Errorf("AvailableCount = %d, want 1", got)
	}
}

func TestOwnershipUniqueness(t *testing.T) {
	p := newTestPool(t, 4)
	p.Acquire("a")
	p.Acquire("b")
	p.Acquire("a")
	p.Acquire("b")

	count := map[string]int{}
	for i := 0; i < p.Size(); i++ {
		if owner, ok := p.OwnerOf(i); ok {
			count[owner]++
		}
	}
	for owner, n := range count {
		if n != 1 {
			t.Errorf("owner %q holds %d channels, want 1", owner, n)
		}
	}
}

func TestCapacityBound(t *testing.T) {
	// Scenario B: fill the pool, overflow, release, retry.
	p := newTestPool(t, 4)

	for _, owner := range []string{"a", "b", "c", "d"} {
		if _, ok := p.Acquire(owner); !ok {
			t.Fatalf("acquire %q failed with capacity left", owner)
		}
	}
	if _, ok := p.Acquire("e"); ok {
		t.Error("fifth owner acquired on a full pool")
	}
	if got := p.AvailableCount(); got != 0 {
		t.Errorf("AvailableCount = %d, want 0", got)
	}

	p.ReleaseOwner("b")
	if _, ok := p.Acquire("e"); !ok {
		t.Error("acquire after release failed")
	}
	if got := p.ActiveCount(); got != 4 {
		t.Errorf("ActiveCount = %d, want 4", got)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	p := newTestPool(t, 4)
	idx, _ := p.Acquire("melody")

	p.ReleaseOwner("nobody") // never held anything
	if got := p.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount after foreign release = %d, want 1", got)
	}

	p.Release(idx)
	p.Release(idx) // second release of same index
	p.ReleaseOwner("melody")
	if got := p.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount = %d, want 0", got)
	}
	p.Release(-1)
	p.Release(99) // out of range, no panic
}

func TestReleaseAll(t *testing.T) {
	p := newTestPool(t, 4)
	p.Acquire("a")
	p.Acquire("b")
	p.Acquire("c")

	p.ReleaseAll()
	if got := p.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after ReleaseAll = %d, want 0", got)
	}
	if got := p.AvailableCount(); got != 4 {
		t.Errorf("AvailableCount = %d, want 4", got)
	}
}

func TestReacquireAfterReleaseResetsVolume(t *testing.T) {
	p := newTestPool(t, 2)
	idx, _ := p.Acquire("melody")
	p.SetVolume(idx, 0.3)
	p.Release(idx)

	idx2, _ := p.Acquire("melody")
	if got := p.Volume(idx2); got != 1.0 {
		t.Errorf("volume after reacquire = %v, want 1.0", got)
	}
}

// --- Play ---

func TestPlayUnreservedIsNoOp(t *testing.T) {
	p := newTestPool(t, 4)
	if p.Play(0, []byte{0x00, 0x40}, 1) {
		t.Error("play on unreserved index reported success")
	}
	if p.PlayOwner("ghost", []byte{0x00, 0x40}, 1) {
		t.Error("play for unknown owner reported success")
	}
}

func TestPlaySubmitsScaledAudio(t *testing.T) {
	var got []float32
	p := newTestPool(t, 4, WithMonitor(func(s []float32, _ int) { got = s }))

	idx, _ := p.Acquire("melody")
	p.SetVolume(idx, 0.5) // nothing buffered: applies immediately

	// 16384/32768 = 0.5 input amplitude
	data := []byte{0x00, 0x40, 0x00, 0x40}
	if !p.Play(idx, data, 1) {
		t.Fatal("play failed")
	}
	if len(got) != 2 {
		t.Fatalf("monitor saw %d samples, want 2", len(got))
	}
	if got[0] != 0.25 {
		t.Errorf("submitted sample = %v, want 0.25 (0.5 input x 0.5 volume)", got[0])
	}
}

func TestPlaySupersedesQueuedAudio(t *testing.T) {
	p := newTestPool(t, 4)
	idx, _ := p.Acquire("melody")

	p.PlaySamples(idx, constClip(100, 0.5))
	p.PlaySamples(idx, constClip(40, 0.5))

	// The sink must hold only the second clip: the first was flushed, not
	// mixed or appended.
	s := poolSink(t, p, idx)
	if got := s.Pending(); got != 40 {
		t.Errorf("sink pending = %d samples, want 40 (stale clip flushed)", got)
	}
}

func TestStopKeepsReservation(t *testing.T) {
	p := newTestPool(t, 4)
	idx, _ := p.Acquire("melody")
	p.PlaySamples(idx, constClip(10, 0.5))

	p.Stop(idx)
	if owner, ok := p.OwnerOf(idx); !ok || owner != "melody" {
		t.Errorf("owner after stop = %q, %v; want melody, true", owner, ok)
	}
	// Stop twice is fine.
	p.Stop(idx)
	p.StopOwner("melody")
	p.StopAll()
}

// --- Volume debounce ---

func TestVolumeImmediateWithoutAudio(t *testing.T) {
	p := newTestPool(t, 4, WithDebounceWindow(100*time.Millisecond))
	idx, _ := p.Acquire("melody")

	p.SetVolume(idx, 0.25)
	if got := p.Volume(idx); got != 0.25 {
		t.Errorf("target volume = %v, want 0.25", got)
	}

	// No debounce should be in flight; ticking must not resubmit anything.
	s := poolSink(t, p, idx)
	p.Tick(1.0)
	if got := s.Pending(); got != 0 {
		t.Errorf("sink pending = %d after tick, want 0", got)
	}
}

func TestVolumeClamp(t *testing.T) {
	p := newTestPool(t, 4)
	idx, _ := p.Acquire("melody")

	p.SetVolume(idx, 1.8)
	if got := p.Volume(idx); got != 1.0 {
		t.Errorf("volume = %v, want clamp to 1.0", got)
	}
	p.SetVolume(idx, -2)
	if got := p.Volume(idx); got != 0 {
		t.Errorf("volume = %v, want clamp to 0", got)
	}
}

func TestDebounceConvergence(t *testing.T) {
	var renders [][]float32
	p := newTestPool(t, 4,
		WithDebounceWindow(100*time.Millisecond),
		WithMonitor(func(s []float32, _ int) { renders = append(renders, s) }))

	idx, _ := p.Acquire("melody")
	p.PlaySamples(idx, constClip(2000, 1.0))
	if len(renders) != 1 {
		t.Fatalf("renders after play = %d, want 1", len(renders))
	}

	p.SetVolume(idx, 0.5)

	// Inside the window: not applied yet.
	p.Tick(0.05)
	if len(renders) != 1 {
		t.Fatalf("volume applied before window elapsed (%d renders)", len(renders))
	}

	p.Tick(0.06)
	if len(renders) != 2 {
		t.Fatalf("renders after window = %d, want 2", len(renders))
	}
	clip := renders[1]
	if got := clip[len(clip)-1]; got != 0.5 {
		t.Errorf("re-rendered amplitude = %v, want 0.5", got)
	}

	// Settled: further ticks change nothing.
	p.Tick(1.0)
	if len(renders) != 2 {
		t.Errorf("renders after settle = %d, want 2", len(renders))
	}
}

func TestDebounceLastWriteWins(t *testing.T) {
	var renders [][]float32
	p := newTestPool(t, 4,
		WithDebounceWindow(100*time.Millisecond),
		WithMonitor(func(s []float32, _ int) { renders = append(renders, s) }))

	idx, _ := p.Acquire("melody")
	p.PlaySamples(idx, constClip(2000, 1.0))

	p.SetVolume(idx, 0.3)
	p.Tick(0.08)
	p.SetVolume(idx, 0.9) // restarts the window

	p.Tick(0.08) // 80ms into the restarted window: still pending
	if len(renders) != 1 {
		t.Fatalf("intermediate volume rendered (%d renders)", len(renders))
	}

	p.Tick(0.03)
	if len(renders) != 2 {
		t.Fatalf("renders = %d, want 2", len(renders))
	}
	clip := renders[1]
	if got := clip[len(clip)-1]; float32(0.9) != got {
		t.Errorf("final amplitude = %v, want 0.9; 0.3 must never render", got)
	}
}

func TestNewPlayCancelsDebounce(t *testing.T) {
	var renders [][]float32
	p := newTestPool(t, 4,
		WithDebounceWindow(100*time.Millisecond),
		WithMonitor(func(s []float32, _ int) { renders = append(renders, s) }))

	idx, _ := p.Acquire("melody")
	p.PlaySamples(idx, constClip(100, 1.0))
	p.SetVolume(idx, 0.5)

	// A fresh clip arrives mid-window: it renders at the latest target and
	// the timer is dropped.
	p.PlaySamples(idx, constClip(100, 1.0))
	if len(renders) != 2 {
		t.Fatalf("renders = %d, want 2", len(renders))
	}
	if got := renders[1][0]; got != 0.5 {
		t.Errorf("new clip amplitude = %v, want 0.5", got)
	}

	p.Tick(1.0)
	if len(renders) != 2 {
		t.Errorf("expired timer re-rendered after play (%d renders)", len(renders))
	}
}

// --- Role bindings ---

func TestRoleHelpers(t *testing.T) {
	p := newTestPool(t, 4)

	data := []byte{0x00, 0x40}
	if !p.PlayMelody(data, 1) {
		t.Fatal("PlayMelody failed")
	}
	if !p.PlayDrums(data, 1) {
		t.Fatal("PlayDrums failed")
	}
	if !p.PlayCombined(data, 1) {
		t.Fatal("PlayCombined failed")
	}

	for _, owner := range []string{OwnerMelody, OwnerDrums, OwnerCombined} {
		if !p.HasOwner(owner) {
			t.Errorf("missing reservation for %q", owner)
		}
	}

	p.SetDrumsVolume(0.5)
	if got := p.VolumeOwner(OwnerDrums); got != 0.5 {
		t.Errorf("drums volume = %v, want 0.5", got)
	}

	p.StopMelody()
	p.StopDrums()
	p.StopCombined()
	if got := p.ActiveCount(); got != 3 {
		t.Errorf("ActiveCount after stops = %d, want 3 (stop keeps reservation)", got)
	}
}

func TestRoleHelpersOnFullPool(t *testing.T) {
	p := newTestPool(t, 1)
	p.Acquire("hog")

	if p.PlayMelody([]byte{0x00, 0x40}, 1) {
		t.Error("PlayMelody succeeded on a full pool")
	}
}

// --- Introspection ---

func TestStatusDump(t *testing.T) {
	p := newTestPool(t, 2)
	idx, _ := p.Acquire("melody")
	p.SetVolume(idx, 0.8)

	s := p.Status()
	if !strings.Contains(s, "owner=melody") {
		t.Errorf("status missing owner: %q", s)
	}
	if !strings.Contains(s, "vol=80%") {
		t.Errorf("status missing volume: %q", s)
	}
	if !strings.Contains(s, "free") {
		t.Errorf("status missing free channel: %q", s)
	}

	// 0.29 lands just under 29 in float64; the dump must round, not
	// truncate to 28.
	p.SetVolume(idx, 0.29)
	if s := p.Status(); !strings.Contains(s, "vol=29%") {
		t.Errorf("status volume not rounded: %q", s)
	}
}

func TestPoolReady(t *testing.T) {
	p := newTestPool(t, 4)
	if !p.IsReady() {
		t.Error("pool not ready after construction")
	}
	if p.Size() != 4 {
		t.Errorf("Size = %d, want 4", p.Size())
	}
}

// poolSink digs out the headless sink behind a channel for queue assertions.
func poolSink(t *testing.T, p *Pool, index int) interface{ Pending() int } {
	t.Helper()
	ch := p.at(index)
	if ch == nil {
		t.Fatalf("no channel at %d", index)
	}
	s, ok := ch.out.(interface{ Pending() int })
	if !ok {
		t.Fatal("sink does not expose Pending")
	}
	return s
}
