package main

import "sync"

// MaxSampleBufferSamples is the 15-minute cap at 16 kHz mono from the data
// model: 15 * 60 * 16000 = 14,400,000 samples (~57 MB of float32).
const MaxSampleBufferSamples = 15 * 60 * audioSampleRate

// BoundedBuffer is a thread-safe, append-only accumulator for float32 PCM
// audio samples, bounded at MaxSampleBufferSamples.
//
// Unlike the predecessor's RingBuffer (a 60-second drop-oldest ring, suited
// to a rolling preview window), this buffer drop-newest once the cap is
// reached and emits exactly one warning per overflow "episode" — the whole
// point of the cap is "stop growing, don't silently corrupt the start of
// the recording the user is relying on".
type BoundedBuffer struct {
	mu             sync.Mutex
	buf            []float32
	warned         bool
	overflowNotify func() // invoked at most once per overflow episode
}

// NewBoundedBuffer creates an empty BoundedBuffer. onOverflow, if non-nil,
// is invoked synchronously (under no lock) the first time a Write would
// exceed MaxSampleBufferSamples; it is not invoked again until Drain.
func NewBoundedBuffer(onOverflow func()) *BoundedBuffer {
	return &BoundedBuffer{
		buf:            make([]float32, 0, audioSampleRate), // 1s initial capacity
		overflowNotify: onOverflow,
	}
}

// Write appends samples, dropping whatever portion would exceed the cap.
// If any samples were dropped and a warning has not yet been emitted for
// this recording, the overflow callback fires exactly once.
func (b *BoundedBuffer) Write(samples []float32) {
	b.mu.Lock()
	room := MaxSampleBufferSamples - len(b.buf)
	var overflowed bool
	if room <= 0 {
		overflowed = len(samples) > 0
	} else if len(samples) > room {
		b.buf = append(b.buf, samples[:room]...)
		overflowed = true
	} else {
		b.buf = append(b.buf, samples...)
	}
	notify := overflowed && !b.warned
	if notify {
		b.warned = true
	}
	b.mu.Unlock()

	if notify && b.overflowNotify != nil {
		b.overflowNotify()
	}
}

// Drain returns all buffered samples as a copy and resets the buffer
// (including the overflow-warned flag) for the next recording.
func (b *BoundedBuffer) Drain() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		b.warned = false
		return nil
	}
	out := make([]float32, len(b.buf))
	copy(out, b.buf)
	b.buf = b.buf[:0]
	b.warned = false
	return out
}

// Len returns the number of samples currently held.
func (b *BoundedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
