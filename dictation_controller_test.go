package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubInjector struct {
	pasted  string
	restore bool
	err     error
}

func (s *stubInjector) Paste(ctx context.Context, text string, restore bool) error {
	s.pasted, s.restore = text, restore
	return s.err
}

type stubEventLog struct {
	events []DictationCompleteFields
}

func (s *stubEventLog) LogDictationComplete(f DictationCompleteFields) {
	s.events = append(s.events, f)
}

type stubSettings struct {
	model     ActiveModel
	language  string
	autoPaste bool
}

func (s *stubSettings) ActiveModel() ActiveModel { return s.model }
func (s *stubSettings) Language() string         { return s.language }
func (s *stubSettings) AutoPaste() bool          { return s.autoPaste }

func newTestController(t *testing.T, transcriber Transcriber) (*DictationController, *mockAudioBackend, *stubInjector, *stubEventLog) {
	t.Helper()
	backend := newMockAudioBackend()
	audio := newAudioCaptureWithBackend(backend, NewBoundedBuffer(nil))
	router := NewTranscriptionRouter(transcriber, nil, nil)
	inj := &stubInjector{}
	elog := &stubEventLog{}
	settings := &stubSettings{model: ActiveModel{Family: ModelFamilyAccelerated, Path: "/a.bin"}, language: "en", autoPaste: true}
	return NewDictationController(audio, router, inj, elog, settings), backend, inj, elog
}

func TestControllerStartStopHappyPath(t *testing.T) {
	transcriber := &stubTranscriber{result: "hello there"}
	c, backend, inj, elog := newTestController(t, transcriber)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("State() = %v; want Recording", c.State())
	}

	backend.push(loudSamples(audioSampleRate)) // 1s of non-silent audio
	time.Sleep(10 * time.Millisecond)

	c.StopRecording()

	waitForState(t, c, StateIdle)

	if inj.pasted != "hello there" {
		t.Errorf("injected text = %q; want %q", inj.pasted, "hello there")
	}
	if len(elog.events) != 1 || !elog.events[0].Success {
		t.Fatalf("expected 1 successful dictation_complete event, got %+v", elog.events)
	}
}

func TestControllerSingleInFlight(t *testing.T) {
	c, _, _, _ := newTestController(t, &stubTranscriber{result: "x"})
	ctx := context.Background()

	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("second StartRecording: %v", err)
	}
	if c.State() != StateRecording {
		t.Fatalf("State() = %v; want Recording (second Start should be a no-op)", c.State())
	}
}

func TestControllerPushToTalkDefersShortHold(t *testing.T) {
	c, backend, _, _ := newTestController(t, &stubTranscriber{result: "quick"})
	ctx := context.Background()

	if err := c.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	backend.push([]float32{0.1, 0.2})

	c.StopRecordingPushToTalk() // called immediately — well under 300ms
	if c.State() != StateRecording {
		t.Fatalf("State() right after early key-up = %v; want still Recording (deferred)", c.State())
	}

	waitForState(t, c, StateIdle)
}

func TestControllerRetryAfterRecoverableFailure(t *testing.T) {
	failing := &stubTranscriber{transcribeErr: newTranscriberError(ErrKindInferenceError, "boom")}
	c, backend, _, elog := newTestController(t, failing)
	ctx := context.Background()

	c.StartRecording(ctx) //nolint:errcheck
	backend.push(loudSamples(audioSampleRate))
	time.Sleep(10 * time.Millisecond)
	c.StopRecording()
	waitForState(t, c, StateIdle)

	if len(elog.events) != 1 || elog.events[0].Success {
		t.Fatalf("expected 1 failed dictation_complete event, got %+v", elog.events)
	}

	failing.transcribeErr = nil
	failing.result = "recovered"
	c.RetryLastTranscription()
	waitForState(t, c, StateIdle)

	if len(elog.events) != 2 || !elog.events[1].Success {
		t.Fatalf("expected retry to log a success, got %+v", elog.events)
	}
}

func TestControllerFailureTransitionsThroughErrorState(t *testing.T) {
	failing := &stubTranscriber{transcribeErr: newTranscriberError(ErrKindInferenceError, "boom")}
	c, backend, _, _ := newTestController(t, failing)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []ControllerState
	c.SetStateListener(func(s ControllerState, msg string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		if s == StateError && msg == "" {
			t.Error("StateError transition carried no message")
		}
	})

	c.StartRecording(ctx) //nolint:errcheck
	backend.push(loudSamples(audioSampleRate))
	time.Sleep(10 * time.Millisecond)
	c.StopRecording()
	waitForState(t, c, StateIdle)

	mu.Lock()
	defer mu.Unlock()
	foundError := false
	for i, s := range seen {
		if s == StateError {
			foundError = true
			if i == 0 || seen[i-1] != StateTranscribing || seen[len(seen)-1] != StateIdle {
				t.Errorf("expected ...Transcribing, Error, ...Idle, got %v", seen)
			}
		}
	}
	if !foundError {
		t.Fatalf("expected a StateError transition, got %v", seen)
	}
	if c.LastError() == "" {
		t.Error("LastError() should retain the failure message after returning to Idle")
	}
}

func TestControllerUnauthorizedDoesNotOfferRetry(t *testing.T) {
	failing := &stubTranscriber{transcribeErr: newTranscriberError(ErrKindUnauthorized, "")}
	c, backend, _, elog := newTestController(t, failing)
	ctx := context.Background()

	c.StartRecording(ctx) //nolint:errcheck
	backend.push(loudSamples(audioSampleRate))
	time.Sleep(10 * time.Millisecond)
	c.StopRecording()
	waitForState(t, c, StateIdle)

	failing.transcribeErr = nil
	failing.result = "should not run"
	c.RetryLastTranscription()
	time.Sleep(20 * time.Millisecond)

	if len(elog.events) != 1 {
		t.Errorf("retry should not have dispatched after Unauthorized; got %d dictation_complete events, want 1", len(elog.events))
	}
}

func TestControllerEmptyTrimmedAudioSkipsInference(t *testing.T) {
	transcriber := &stubTranscriber{result: "should not be used"}
	c, backend, inj, elog := newTestController(t, transcriber)
	ctx := context.Background()

	c.StartRecording(ctx) //nolint:errcheck
	backend.push(make([]float32, audioSampleRate)) // pure silence, will trim to empty
	time.Sleep(10 * time.Millisecond)
	c.StopRecording()
	waitForState(t, c, StateIdle)

	if transcriber.warmUpCalls != 0 {
		t.Error("backend should not be warmed up for an empty trimmed buffer")
	}
	if inj.pasted != "" {
		t.Error("nothing should be injected for an empty transcript")
	}
	if len(elog.events) != 1 || elog.events[0].ResultChars != 0 {
		t.Fatalf("expected one empty-result event, got %+v", elog.events)
	}
}

// loudSamples returns n samples at a constant 0.5 amplitude, far above
// silenceRMSThreshold, so trimSilence keeps every one of them.
func loudSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.5
	}
	return s
}

func waitForState(t *testing.T, c *DictationController, want ControllerState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State() never reached %v; stuck at %v", want, c.State())
}
