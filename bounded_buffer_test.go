package main

import "testing"

func TestBoundedBufferWriteDrain(t *testing.T) {
	b := NewBoundedBuffer(nil)
	b.Write([]float32{1, 2, 3})
	b.Write([]float32{4, 5})
	if got := b.Len(); got != 5 {
		t.Fatalf("Len() = %d; want 5", got)
	}
	out := b.Drain()
	want := []float32{1, 2, 3, 4, 5}
	if len(out) != len(want) {
		t.Fatalf("Drain() len = %d; want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %v; want %v", i, out[i], want[i])
		}
	}
	if b.Len() != 0 {
		t.Errorf("Len() after Drain = %d; want 0", b.Len())
	}
}

func TestBoundedBufferDrainEmpty(t *testing.T) {
	b := NewBoundedBuffer(nil)
	if out := b.Drain(); out != nil {
		t.Errorf("Drain() on empty buffer = %v; want nil", out)
	}
}

func TestBoundedBufferCapDropsNewestAndWarnsOnce(t *testing.T) {
	warnings := 0
	b := NewBoundedBuffer(func() { warnings++ })

	chunk := make([]float32, audioSampleRate) // 1 second per write
	writesNeeded := MaxSampleBufferSamples/len(chunk) + 5
	for i := 0; i < writesNeeded; i++ {
		b.Write(chunk)
	}

	if got := b.Len(); got != MaxSampleBufferSamples {
		t.Errorf("Len() = %d; want exactly the cap %d", got, MaxSampleBufferSamples)
	}
	if warnings != 1 {
		t.Errorf("overflow warnings = %d; want exactly 1", warnings)
	}

	// Further writes past the cap still produce no growth and no extra warning.
	b.Write(chunk)
	if got := b.Len(); got != MaxSampleBufferSamples {
		t.Errorf("Len() after further writes = %d; want %d", got, MaxSampleBufferSamples)
	}
	if warnings != 1 {
		t.Errorf("overflow warnings after further writes = %d; want 1", warnings)
	}
}

func TestBoundedBufferResetsWarningOnDrain(t *testing.T) {
	warnings := 0
	b := NewBoundedBuffer(func() { warnings++ })
	chunk := make([]float32, MaxSampleBufferSamples+1)
	b.Write(chunk)
	if warnings != 1 {
		t.Fatalf("warnings = %d; want 1", warnings)
	}
	b.Drain()
	b.Write(chunk)
	if warnings != 2 {
		t.Errorf("warnings after second recording overflow = %d; want 2 (warned flag should reset per recording)", warnings)
	}
}
