package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// ErrMicPermissionDenied is returned when the OS has denied microphone access.
var ErrMicPermissionDenied = errors.New("microphone access denied — enable in System Settings → Privacy → Microphone")

// ErrDeviceError wraps a lower-level portaudio failure that isn't a
// permission issue (device missing, already in use, etc).
type ErrDeviceError struct{ msg string }

func (e *ErrDeviceError) Error() string { return "audio: device error: " + e.msg }

const (
	audioSampleRate   = 16000 // Hz — canonical capture rate
	audioChannels     = 1     // mono
	audioFramesPerBuf = 1024  // ~64ms at 16kHz, per the capture pipeline contract
)

// audioBackend abstracts the real PortAudio implementation so unit tests
// can inject a mock without a real microphone.
type audioBackend interface {
	Open() error
	Start() error
	Stop() error
	Close() error
	Frames() <-chan []float32
}

// realAudioBackend wraps gordonklaus/portaudio for production use.
type realAudioBackend struct {
	stream   *portaudio.Stream
	framesCh chan []float32
}

func newRealAudioBackend() *realAudioBackend {
	return &realAudioBackend{framesCh: make(chan []float32, 64)}
}

func (r *realAudioBackend) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	// Stop closes framesCh, so each recording gets a fresh channel.
	r.framesCh = make(chan []float32, 64)

	stream, err := portaudio.OpenDefaultStream(
		audioChannels,
		0,
		float64(audioSampleRate),
		audioFramesPerBuf,
		func(in []float32) {
			frame := make([]float32, len(in))
			copy(frame, in)
			select {
			case r.framesCh <- frame:
			default:
				// Consumer too slow for this frame; BoundedBuffer's drop
				// semantics apply to accepted frames, not to frames lost
				// here on backpressure — the audio-thread contract
				// bounds this callback to an O(buffer) copy and append.
			}
		},
	)
	if err != nil {
		portaudio.Terminate() //nolint:errcheck
		errStr := strings.ToLower(err.Error())
		if strings.Contains(errStr, "denied") ||
			strings.Contains(errStr, "device unavailable") ||
			strings.Contains(errStr, "unauthorized") {
			return ErrMicPermissionDenied
		}
		return &ErrDeviceError{msg: err.Error()}
	}
	r.stream = stream
	return nil
}

func (r *realAudioBackend) Start() error {
	if err := r.stream.Start(); err != nil {
		return &ErrDeviceError{msg: err.Error()}
	}
	return nil
}

func (r *realAudioBackend) Stop() error {
	if err := r.stream.Stop(); err != nil {
		return &ErrDeviceError{msg: err.Error()}
	}
	close(r.framesCh)
	return nil
}

func (r *realAudioBackend) Close() error {
	err := r.stream.Close()
	portaudio.Terminate() //nolint:errcheck
	return err
}

func (r *realAudioBackend) Frames() <-chan []float32 { return r.framesCh }

// AudioCapture manages microphone capture per SPEC_FULL.md §4.5. Audio is
// captured as float32 PCM into an in-memory BoundedBuffer; no audio data is
// ever written to disk. The most recently captured buffer is retained as
// the Retained Utterance until cleared or a new recording begins.
type AudioCapture struct {
	backend   audioBackend
	buf       *BoundedBuffer
	recording atomic.Bool

	retained   []float32
	onOverflow func() // surfaced to the event log by the caller
}

// NewAudioCapture creates an AudioCapture backed by the real PortAudio API.
func NewAudioCapture(onOverflow func()) *AudioCapture {
	c := &AudioCapture{backend: newRealAudioBackend(), onOverflow: onOverflow}
	c.buf = NewBoundedBuffer(func() {
		if c.onOverflow != nil {
			c.onOverflow()
		}
	})
	return c
}

// newAudioCaptureWithBackend wires a custom backend and buffer (tests only).
func newAudioCaptureWithBackend(b audioBackend, buf *BoundedBuffer) *AudioCapture {
	return &AudioCapture{backend: b, buf: buf}
}

// Start opens the microphone and begins capturing audio into the bounded
// buffer. The draining goroutine exits when ctx is cancelled or the
// backend's Frames channel closes (i.e. after Stop).
func (c *AudioCapture) Start(ctx context.Context) error {
	if c.recording.Load() {
		return nil // idempotent
	}

	if err := c.backend.Open(); err != nil {
		return err
	}
	if err := c.backend.Start(); err != nil {
		c.backend.Close() //nolint:errcheck
		return err
	}

	c.recording.Store(true)
	frames := c.backend.Frames()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				c.buf.Write(frame)
			}
		}
	}()

	return nil
}

// Stop detaches the tap, stops the engine, takes the buffer, retains it as
// the Retained Utterance, and returns a copy to the caller. Always
// returns, possibly with an empty slice.
func (c *AudioCapture) Stop() []float32 {
	if !c.recording.Load() {
		return nil
	}
	if err := c.backend.Stop(); err != nil {
		// Non-fatal: still drain whatever was captured so the user
		// doesn't lose the utterance because of a teardown error.
		_ = err
	}
	c.backend.Close() //nolint:errcheck

	c.recording.Store(false)
	pcm := c.buf.Drain()
	c.retained = pcm
	return pcm
}

// ClearRetained discards the Retained Utterance (called on successful
// transcription or when a new recording begins).
func (c *AudioCapture) ClearRetained() {
	c.retained = nil
}

// Retained returns the current Retained Utterance, or nil if none.
func (c *AudioCapture) Retained() []float32 {
	return c.retained
}

// IsRecording reports whether audio capture is currently active.
func (c *AudioCapture) IsRecording() bool {
	return c.recording.Load()
}
