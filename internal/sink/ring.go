package sink

import "sync"

// sampleQueue is a mutex-guarded FIFO of float32 samples shared between the
// pushing side and the device read callback.
type sampleQueue struct {
	mu  sync.Mutex
	buf []float32
}

func (q *sampleQueue) push(samples []float32) {
	q.mu.Lock()
	q.buf = append(q.buf, samples...)
	q.mu.Unlock()
}

// pop moves up to len(dst) queued samples into dst and zero-fills the rest,
// so the device always reads a full buffer (silence when idle).
func (q *sampleQueue) pop(dst []float32) {
	q.mu.Lock()
	n := copy(dst, q.buf)
	q.buf = q.buf[n:]
	if len(q.buf) == 0 {
		q.buf = nil // release backing array once drained
	}
	q.mu.Unlock()

	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func (q *sampleQueue) flush() {
	q.mu.Lock()
	q.buf = nil
	q.mu.Unlock()
}

func (q *sampleQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
