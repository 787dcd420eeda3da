package main

import "testing"

// stubTranscriber is a minimal Transcriber for router-level tests; the
// backend-specific behaviors (warm-up caching, error kinds) are already
// covered by transcriber_local_test.go and transcriber_remote_test.go.
type stubTranscriber struct {
	warmUpCalls   int
	warmUpErr     error
	result        string
	transcribeErr error
	lastPrompt    PromptContext
}

func (s *stubTranscriber) IsReady() bool { return s.warmUpCalls > 0 }
func (s *stubTranscriber) WarmUp(path string) error {
	s.warmUpCalls++
	return s.warmUpErr
}
func (s *stubTranscriber) Transcribe(samples []float32, language string, prompt PromptContext) (string, error) {
	s.lastPrompt = prompt
	if s.transcribeErr != nil {
		return "", s.transcribeErr
	}
	return s.result, nil
}

func TestRouterDispatchWarmsUpOnce(t *testing.T) {
	accel := &stubTranscriber{result: "hi"}
	r := NewTranscriptionRouter(accel, nil, nil)

	model := ActiveModel{Family: ModelFamilyAccelerated, Path: "/models/a.bin"}
	if _, err := r.Dispatch(model, []float32{0.1}, "en", PromptContext{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := r.Dispatch(model, []float32{0.1}, "en", PromptContext{}); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	if accel.warmUpCalls != 1 {
		t.Errorf("warmUpCalls = %d; want 1 (same model path)", accel.warmUpCalls)
	}
}

func TestRouterDispatchRewarmsOnModelChange(t *testing.T) {
	accel := &stubTranscriber{result: "hi"}
	r := NewTranscriptionRouter(accel, nil, nil)

	r.Dispatch(ActiveModel{Family: ModelFamilyAccelerated, Path: "/models/a.bin"}, []float32{0.1}, "en", PromptContext{}) //nolint:errcheck
	r.Dispatch(ActiveModel{Family: ModelFamilyAccelerated, Path: "/models/b.bin"}, []float32{0.1}, "en", PromptContext{}) //nolint:errcheck

	if accel.warmUpCalls != 2 {
		t.Errorf("warmUpCalls = %d; want 2 (model path changed)", accel.warmUpCalls)
	}
}

func TestRouterDispatchUnavailableBackend(t *testing.T) {
	r := NewTranscriptionRouter(nil, nil, nil)
	_, err := r.Dispatch(ActiveModel{Family: ModelFamilyRemote}, []float32{0.1}, "en", PromptContext{})
	terr, ok := err.(*TranscriberError)
	if !ok || terr.Kind != ErrKindModelNotLoaded {
		t.Fatalf("Dispatch() error = %v; want ModelNotLoaded", err)
	}
}

func TestRouterDispatchComputesRTF(t *testing.T) {
	accel := &stubTranscriber{result: "hi"}
	r := NewTranscriptionRouter(accel, nil, nil)

	samples := make([]float32, audioSampleRate) // 1 second of audio
	result, err := r.Dispatch(ActiveModel{Family: ModelFamilyAccelerated, Path: "/a.bin"}, samples, "en", PromptContext{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.RTF < 0 {
		t.Errorf("RTF = %v; want >= 0", result.RTF)
	}
	if result.Text != "hi" {
		t.Errorf("Text = %q; want %q", result.Text, "hi")
	}
}
