package main

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperContext abstracts the decode surface of a loaded whisper.cpp
// model so both local backends and unit tests can share one shape.
type whisperContext interface {
	SetLanguage(string) error
	SetThreads(uint)
	SetBeamSize(int)
	SetAudioCtx(uint)
	SetMaxContext(int)
	SetTokenTimestamps(bool)
	SetInitialPrompt(string)
	SetTemperature(float32)
	SetTemperatureFallback(float32)
	SetNoSpeechThreshold(float32)
	Process(pcm []float32) error
	NextSegment() (string, bool)
}

// realWhisperContext adapts github.com/ggerganov/whisper.cpp/bindings/go's
// whisperlib.Context to the whisperContext interface above.
type realWhisperContext struct {
	ctx whisperlib.Context
}

func (r *realWhisperContext) SetLanguage(lang string) error    { return r.ctx.SetLanguage(lang) }
func (r *realWhisperContext) SetThreads(n uint)                { r.ctx.SetThreads(n) }
func (r *realWhisperContext) SetBeamSize(n int)                { r.ctx.SetBeamSize(n) }
func (r *realWhisperContext) SetAudioCtx(n uint)               { r.ctx.SetAudioCtx(n) }
func (r *realWhisperContext) SetMaxContext(n int)              { r.ctx.SetMaxContext(n) }
func (r *realWhisperContext) SetTokenTimestamps(b bool)        { r.ctx.SetTokenTimestamps(b) }
func (r *realWhisperContext) SetInitialPrompt(p string)        { r.ctx.SetInitialPrompt(p) }
func (r *realWhisperContext) SetTemperature(t float32)         { r.ctx.SetTemperature(t) }
func (r *realWhisperContext) SetTemperatureFallback(t float32) { r.ctx.SetTemperatureFallback(t) }
func (r *realWhisperContext) SetNoSpeechThreshold(t float32)   { r.ctx.SetNoSpeechThreshold(t) }

func (r *realWhisperContext) Process(pcm []float32) error {
	return r.ctx.Process(pcm, nil, nil, nil)
}

func (r *realWhisperContext) NextSegment() (string, bool) {
	seg, err := r.ctx.NextSegment()
	if err != nil {
		return "", false
	}
	return seg.Text, true
}

// whisperModel abstracts whisperlib.Model for loading/closing.
type whisperModel interface {
	NewContext() (whisperContext, error)
	Close() error
}

type realWhisperModel struct {
	model whisperlib.Model
}

func (m *realWhisperModel) NewContext() (whisperContext, error) {
	ctx, err := m.model.NewContext()
	if err != nil {
		return nil, err
	}
	return &realWhisperContext{ctx: ctx}, nil
}

func (m *realWhisperModel) Close() error { return m.model.Close() }

func loadRealWhisperModel(path string) (whisperModel, error) {
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, err
	}
	return &realWhisperModel{model: model}, nil
}

// noSpeechThreshold is whisper.cpp's own default for `no_speech_thold`: a
// segment whose no-speech probability exceeds this is suppressed from the
// transcript rather than decoded as a hallucinated utterance.
const noSpeechThreshold = 0.6

// clampWorkers implements clamp(cpu/2, 2, 16).
func clampWorkers() uint {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	if n > 16 {
		n = 16
	}
	return uint(n)
}

// localWhisperBackend is the shared implementation behind both the
// Local-Accelerated and Local-Portable transcribers: identical decode
// tuning, differing only in whether model loading expects a Core ML
// companion file to already be present next to the GGML weights.
type localWhisperBackend struct {
	mu          sync.Mutex
	loadModel   func(path string) (whisperModel, error)
	model       whisperModel
	ctx         whisperContext
	modelPath   string
	requireCoreML bool
}

func newLocalWhisperBackend(requireCoreML bool) *localWhisperBackend {
	return &localWhisperBackend{loadModel: loadRealWhisperModel, requireCoreML: requireCoreML}
}

func (b *localWhisperBackend) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx != nil
}

func (b *localWhisperBackend) WarmUp(modelPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil && b.modelPath == modelPath {
		return nil // already warm — no-op
	}

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return newTranscriberError(ErrKindModelNotLoaded, fmt.Sprintf("model file missing: %s", modelPath))
	}
	if b.requireCoreML {
		if _, err := os.Stat(modelPath + "-encoder.mlmodelc"); os.IsNotExist(err) {
			return newTranscriberError(ErrKindModelNotLoaded, "Core ML companion model missing")
		}
	}

	if b.model != nil {
		b.model.Close() //nolint:errcheck
		b.model, b.ctx = nil, nil
	}

	model, err := b.loadModel(modelPath)
	if err != nil {
		return newTranscriberError(ErrKindModelNotLoaded, err.Error())
	}
	ctx, err := model.NewContext()
	if err != nil {
		model.Close() //nolint:errcheck
		return newTranscriberError(ErrKindModelNotLoaded, err.Error())
	}

	ctx.SetThreads(clampWorkers())
	ctx.SetBeamSize(1)         // greedy sampling — minimum latency
	ctx.SetTemperature(0)      // temperature 0
	ctx.SetTemperatureFallback(-1) // no fallback
	ctx.SetTokenTimestamps(false) // no timestamp tokens in the decoded text
	ctx.SetNoSpeechThreshold(noSpeechThreshold)
	ctx.SetMaxContext(0)
	ctx.SetAudioCtx(768)

	b.model, b.ctx, b.modelPath = model, ctx, modelPath
	return nil
}

func (b *localWhisperBackend) Transcribe(samples []float32, language string, prompt PromptContext) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return "", newTranscriberError(ErrKindModelNotLoaded, "warm_up not called")
	}
	if len(samples) == 0 {
		return "", newTranscriberError(ErrKindNoAudio, "")
	}

	if language != "" {
		b.ctx.SetLanguage(language) //nolint:errcheck
	}
	if p := buildPrompt(prompt); p != "" {
		b.ctx.SetInitialPrompt(p)
	}

	if err := b.ctx.Process(samples); err != nil {
		return "", newTranscriberError(ErrKindInferenceError, err.Error())
	}

	var text string
	for {
		seg, ok := b.ctx.NextSegment()
		if !ok {
			break
		}
		text += seg
	}
	text = trim(text)
	if isHallucination(text) {
		return "", nil
	}
	return text, nil
}

// LocalAcceleratedTranscriber wraps the Neural-Engine-class whisper.cpp
// runtime (Core ML encoder companion required).
type LocalAcceleratedTranscriber struct{ *localWhisperBackend }

func NewLocalAcceleratedTranscriber() *LocalAcceleratedTranscriber {
	return &LocalAcceleratedTranscriber{localWhisperBackend: newLocalWhisperBackend(true)}
}

// LocalPortableTranscriber wraps the CPU-oriented whisper.cpp runtime,
// used for model families the accelerated runtime doesn't offer.
type LocalPortableTranscriber struct{ *localWhisperBackend }

func NewLocalPortableTranscriber() *LocalPortableTranscriber {
	return &LocalPortableTranscriber{localWhisperBackend: newLocalWhisperBackend(false)}
}
