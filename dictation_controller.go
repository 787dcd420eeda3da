package main

import (
	"context"
	"sync"
	"time"
)

// ControllerState enumerates the Dictation Controller's states.
type ControllerState int

const (
	StateIdle ControllerState = iota
	StateRecording
	StateTranscribing
	StateError
)

func (s ControllerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const minimumHoldDuration = 300 * time.Millisecond

// injector is the minimal interface the controller needs from the Text
// Injector (kept minimal, mirroring the app.go consumer-interface pattern).
type injector interface {
	Paste(ctx context.Context, text string, autoPaste bool) error
}

// dictationEventLogger is the minimal interface the controller needs from
// the Event Log.
type dictationEventLogger interface {
	LogDictationComplete(fields DictationCompleteFields)
}

// DictationCompleteFields is the payload of a dictation_complete event.
type DictationCompleteFields struct {
	RecordingMS      int64
	TranscriptionMS  int64
	Samples          int
	Backend          ModelFamily
	Language         string
	ResultChars      int
	Success          bool
}

// DictationSettings is the subset of the Settings Store the controller
// reads on every dispatch (always current — no local caching).
type DictationSettings interface {
	ActiveModel() ActiveModel
	Language() string
	AutoPaste() bool
}

// DictationController is the fused state machine driving the whole
// record → transcribe → inject pipeline (the core component).
type DictationController struct {
	mu    sync.Mutex
	state ControllerState

	audio    *AudioCapture
	router   *TranscriptionRouter
	injector injector
	eventLog dictationEventLogger
	settings DictationSettings

	recordingStarted time.Time
	previousContext  string
	capturedContext  string // accessibility-captured text primed just before StartRecording
	retryable        bool   // whether RetryLastTranscription is currently offered
	lastError        string // message carried by the most recent StateError transition

	holdTimer     *time.Timer
	stateListener func(ControllerState, string)
}

// SetStateListener registers fn to be called, off the caller's goroutine,
// after every state transition; msg is non-empty only for StateError. Used
// by the App Shell to mirror state into the menu-bar indicator and overlay;
// nil by default so unit tests never need one.
func (c *DictationController) SetStateListener(fn func(s ControllerState, msg string)) {
	c.mu.Lock()
	c.stateListener = fn
	c.mu.Unlock()
}

// LastError returns the message carried by the most recent StateError
// transition, or "" if none has occurred yet.
func (c *DictationController) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// setState assigns the new state and notifies the listener, if any, outside
// the lock. Caller must hold c.mu on entry; mutex is released on return.
func (c *DictationController) setState(s ControllerState, msg string) {
	c.state = s
	if s == StateError {
		c.lastError = msg
	}
	listener := c.stateListener
	c.mu.Unlock()
	if listener != nil {
		listener(s, msg)
	}
}

// NewDictationController wires the pipeline components.
func NewDictationController(audio *AudioCapture, router *TranscriptionRouter, inj injector, log dictationEventLogger, settings DictationSettings) *DictationController {
	return &DictationController{
		audio:    audio,
		router:   router,
		injector: inj,
		eventLog: log,
		settings: settings,
		state:    StateIdle,
	}
}

// State returns the controller's current state.
func (c *DictationController) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PrimeContext stashes up to 200 characters of text captured from the
// focused application just before recording starts, fed to the backend as
// prompt-prefill context alongside the previous transcription. One-shot:
// consumed and cleared on the next dispatch.
func (c *DictationController) PrimeContext(text string) {
	c.mu.Lock()
	c.capturedContext = lastNChars(text, 200)
	c.mu.Unlock()
}

// StartRecording transitions Idle → Recording. No-op if not Idle (single-
// in-flight enforcement).
func (c *DictationController) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.recordingStarted = time.Now()
	c.setState(StateRecording, "")

	c.audio.ClearRetained()
	if err := c.audio.Start(ctx); err != nil {
		c.mu.Lock()
		c.setState(StateIdle, "")
		return err
	}
	return nil
}

// StopRecording transitions Recording → Transcribing and dispatches
// transcription asynchronously. Intended for toggle mode, where there is
// no minimum-hold deferral. No-op unless currently Recording.
func (c *DictationController) StopRecording() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	c.setState(StateTranscribing, "")

	go c.finishRecordingAndTranscribe()
}

// StopRecordingPushToTalk implements the push-to-talk key-up rule: if less
// than minimumHoldDuration has elapsed since key-down, defer the stop
// until the minimum has passed.
func (c *DictationController) StopRecordingPushToTalk() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	elapsed := time.Since(c.recordingStarted)
	if elapsed >= minimumHoldDuration {
		c.setState(StateTranscribing, "")
		go c.finishRecordingAndTranscribe()
		return
	}

	remaining := minimumHoldDuration - elapsed
	c.holdTimer = time.AfterFunc(remaining, func() {
		c.mu.Lock()
		if c.state != StateRecording {
			c.mu.Unlock()
			return
		}
		c.setState(StateTranscribing, "")
		c.finishRecordingAndTranscribe()
	})
	c.mu.Unlock()
}

func (c *DictationController) finishRecordingAndTranscribe() {
	recordingStart := c.recordingStarted
	pcm := c.audio.Stop()
	recordingMS := time.Since(recordingStart).Milliseconds()
	c.transcribeAndInject(pcm, recordingMS)
}

// RetryLastTranscription re-runs transcription on the Retained Utterance
// without recapturing audio. Used after a recoverable transcription
// failure.
func (c *DictationController) RetryLastTranscription() {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return
	}
	retained := c.audio.Retained()
	if len(retained) == 0 || !c.retryable {
		c.mu.Unlock()
		return
	}
	c.setState(StateTranscribing, "")

	go c.transcribeAndInject(retained, 0)
}

func (c *DictationController) transcribeAndInject(pcm []float32, recordingMS int64) {
	model := c.settings.ActiveModel()
	language := c.settings.Language()

	trimmed := trimSilence(normalize(pcm), silenceRMSThreshold)

	t0 := time.Now()
	var result TranscriptionResult
	var err error
	if len(trimmed) == 0 {
		result = TranscriptionResult{Text: "", Backend: model.Family}
	} else {
		c.mu.Lock()
		prompt := PromptContext{CustomVocabulary: c.capturedContext, PreviousText: c.previousContext}
		c.capturedContext = ""
		c.mu.Unlock()
		result, err = c.router.Dispatch(model, trimmed, language, prompt)
	}
	transcriptionMS := time.Since(t0).Milliseconds()

	if err != nil {
		terr, _ := err.(*TranscriberError)
		c.logComplete(DictationCompleteFields{
			RecordingMS: recordingMS, TranscriptionMS: transcriptionMS,
			Samples: len(pcm), Backend: model.Family, Language: language,
			ResultChars: 0, Success: false,
		})
		c.mu.Lock()
		// The Retained Utterance (kept by AudioCapture.Stop()) stays in place
		// for retry on any recoverable kind; Unauthorized and NoAudio don't
		// offer one.
		c.retryable = terr != nil && terr.Retryable()
		c.setState(StateError, err.Error())
		c.mu.Lock()
		c.setState(StateIdle, "")
		return
	}

	text := trim(result.Text)
	if isHallucination(text) {
		text = ""
	}

	c.mu.Lock()
	if text != "" {
		c.previousContext = lastNChars(text, 200)
	}
	c.retryable = false
	c.mu.Unlock()

	c.logComplete(DictationCompleteFields{
		RecordingMS: recordingMS, TranscriptionMS: transcriptionMS,
		Samples: len(pcm), Backend: result.Backend, Language: language,
		ResultChars: len(text), Success: true,
	})

	if text != "" {
		c.audio.ClearRetained()
		if c.injector != nil {
			autoPaste := c.settings.AutoPaste()
			c.injector.Paste(context.Background(), text, autoPaste) //nolint:errcheck — non-fatal: missing permission just leaves text on the clipboard
		}
	}

	c.mu.Lock()
	c.setState(StateIdle, "")
}

func (c *DictationController) logComplete(f DictationCompleteFields) {
	if c.eventLog != nil {
		c.eventLog.LogDictationComplete(f)
	}
}

// ResetSession clears carried-over prompt context (called on app restart).
func (c *DictationController) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.previousContext = ""
}

func lastNChars(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
