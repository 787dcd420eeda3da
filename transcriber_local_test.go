package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type mockWhisperContext struct {
	segments         []string
	next             int
	prompt           string
	lang             string
	failErr          error
	noSpeechThold    float32
}

func (m *mockWhisperContext) SetLanguage(l string) error    { m.lang = l; return nil }
func (m *mockWhisperContext) SetThreads(uint)               {}
func (m *mockWhisperContext) SetBeamSize(int)                {}
func (m *mockWhisperContext) SetAudioCtx(uint)               {}
func (m *mockWhisperContext) SetMaxContext(int)              {}
func (m *mockWhisperContext) SetTokenTimestamps(bool)        {}
func (m *mockWhisperContext) SetInitialPrompt(p string)      { m.prompt = p }
func (m *mockWhisperContext) SetTemperature(float32)         {}
func (m *mockWhisperContext) SetTemperatureFallback(float32) {}
func (m *mockWhisperContext) SetNoSpeechThreshold(t float32) { m.noSpeechThold = t }

func (m *mockWhisperContext) Process(pcm []float32) error { return m.failErr }

func (m *mockWhisperContext) NextSegment() (string, bool) {
	if m.next >= len(m.segments) {
		return "", false
	}
	s := m.segments[m.next]
	m.next++
	return s, true
}

type mockWhisperModel struct {
	ctx    *mockWhisperContext
	closed bool
}

func (m *mockWhisperModel) NewContext() (whisperContext, error) { return m.ctx, nil }
func (m *mockWhisperModel) Close() error                        { m.closed = true; return nil }

func withMockLoader(b *localWhisperBackend, ctx *mockWhisperContext) {
	b.loadModel = func(path string) (whisperModel, error) {
		return &mockWhisperModel{ctx: ctx}, nil
	}
}

func tempModelFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(path, []byte("fake"), 0o600); err != nil {
		t.Fatalf("write temp model: %v", err)
	}
	return path
}

func TestLocalWhisperBackendWarmUpAndTranscribe(t *testing.T) {
	b := newLocalWhisperBackend(false)
	withMockLoader(b, &mockWhisperContext{segments: []string{"hello ", "world"}})

	path := tempModelFile(t)
	if err := b.WarmUp(path); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if !b.IsReady() {
		t.Fatal("IsReady() should be true after WarmUp")
	}

	text, err := b.Transcribe([]float32{0.1, 0.2}, "en", PromptContext{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("Transcribe() = %q; want %q", text, "hello world")
	}
}

func TestLocalWhisperBackendWarmUpConfiguresNoSpeechThreshold(t *testing.T) {
	b := newLocalWhisperBackend(false)
	ctx := &mockWhisperContext{}
	withMockLoader(b, ctx)

	if err := b.WarmUp(tempModelFile(t)); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if ctx.noSpeechThold != noSpeechThreshold {
		t.Errorf("no-speech threshold = %v; want %v", ctx.noSpeechThold, noSpeechThreshold)
	}
}

func TestLocalWhisperBackendWarmUpMissingFile(t *testing.T) {
	b := newLocalWhisperBackend(false)
	err := b.WarmUp("/nonexistent/model.bin")
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindModelNotLoaded {
		t.Fatalf("WarmUp() error = %v; want ModelNotLoaded", err)
	}
}

func TestLocalWhisperBackendWarmUpIsNoOpForSameModel(t *testing.T) {
	b := newLocalWhisperBackend(false)
	ctx := &mockWhisperContext{}
	calls := 0
	b.loadModel = func(path string) (whisperModel, error) {
		calls++
		return &mockWhisperModel{ctx: ctx}, nil
	}

	path := tempModelFile(t)
	if err := b.WarmUp(path); err != nil {
		t.Fatalf("first WarmUp: %v", err)
	}
	if err := b.WarmUp(path); err != nil {
		t.Fatalf("second WarmUp: %v", err)
	}
	if calls != 1 {
		t.Errorf("loadModel called %d times; want 1 (warm_up with same model is a no-op)", calls)
	}
}

func TestLocalWhisperBackendTranscribeNoAudio(t *testing.T) {
	b := newLocalWhisperBackend(false)
	withMockLoader(b, &mockWhisperContext{})
	b.WarmUp(tempModelFile(t)) //nolint:errcheck

	_, err := b.Transcribe(nil, "en", PromptContext{})
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindNoAudio {
		t.Fatalf("Transcribe(nil) error = %v; want NoAudio", err)
	}
}

func TestLocalWhisperBackendTranscribeBeforeWarmUp(t *testing.T) {
	b := newLocalWhisperBackend(false)
	_, err := b.Transcribe([]float32{0.1}, "en", PromptContext{})
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindModelNotLoaded {
		t.Fatalf("Transcribe() before WarmUp error = %v; want ModelNotLoaded", err)
	}
}

func TestLocalWhisperBackendInferenceError(t *testing.T) {
	b := newLocalWhisperBackend(false)
	withMockLoader(b, &mockWhisperContext{failErr: errors.New("boom")})
	b.WarmUp(tempModelFile(t)) //nolint:errcheck

	_, err := b.Transcribe([]float32{0.1}, "en", PromptContext{})
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindInferenceError {
		t.Fatalf("Transcribe() error = %v; want InferenceError", err)
	}
}

func TestLocalWhisperBackendFiltersHallucinations(t *testing.T) {
	b := newLocalWhisperBackend(false)
	withMockLoader(b, &mockWhisperContext{segments: []string{"[BLANK_AUDIO]"}})
	b.WarmUp(tempModelFile(t)) //nolint:errcheck

	text, err := b.Transcribe([]float32{0.1}, "en", PromptContext{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("Transcribe() = %q; want empty for hallucination tag", text)
	}
}

func TestLocalAcceleratedRequiresCoreMLCompanion(t *testing.T) {
	b := NewLocalAcceleratedTranscriber()
	withMockLoader(b.localWhisperBackend, &mockWhisperContext{})

	err := b.WarmUp(tempModelFile(t)) // no companion file alongside it
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindModelNotLoaded {
		t.Fatalf("WarmUp() error = %v; want ModelNotLoaded (missing Core ML companion)", err)
	}
}

func TestPromptTruncationToMaxChars(t *testing.T) {
	long := make([]byte, maxPromptChars+50)
	for i := range long {
		long[i] = 'a'
	}
	p := buildPrompt(PromptContext{PreviousText: string(long)})
	if len(p) != maxPromptChars {
		t.Errorf("buildPrompt length = %d; want %d", len(p), maxPromptChars)
	}
}
