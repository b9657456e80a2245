package controller

import "sync"

// LogCapacity is the fixed size of the diagnostic log ring.
const LogCapacity = 16 * 1024

// logRing is a fixed-capacity circular byte store for APBA log indications.
// When an insertion would overflow, just enough of the oldest bytes are
// evicted to make room, capped at one message's worth per insertion.
type logRing struct {
	mu       sync.Mutex
	buf      []byte
	start    int
	length   int
	evictCap int
}

func newLogRing(capacity, evictCap int) *logRing {
	return &logRing{buf: make([]byte, capacity), evictCap: evictCap}
}

// Write appends p, evicting oldest bytes as needed. If p still does not fit
// after the capped eviction, the excess tail of p is dropped.
func (l *logRing) Write(p []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	need := l.length + len(p) - len(l.buf)
	if need > 0 {
		if need > l.evictCap {
			need = l.evictCap
		}
		l.discard(need)
	}

	free := len(l.buf) - l.length
	n := len(p)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		l.buf[(l.start+l.length+i)%len(l.buf)] = p[i]
	}
	l.length += n
}

// Read drains and returns up to max oldest bytes.
func (l *logRing) Read(max int) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.length
	if n > max {
		n = max
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = l.buf[(l.start+i)%len(l.buf)]
	}
	l.discard(n)
	return out
}

// Len returns the number of bytes currently held.
func (l *logRing) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// discard drops the n oldest bytes. Caller holds the lock.
func (l *logRing) discard(n int) {
	if n > l.length {
		n = l.length
	}
	l.start = (l.start + n) % len(l.buf)
	l.length -= n
}
