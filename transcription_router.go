package main

import "time"

// ModelFamily identifies which backend family a model belongs to.
type ModelFamily int

const (
	ModelFamilyAccelerated ModelFamily = iota
	ModelFamilyPortable
	ModelFamilyRemote
)

// ActiveModel describes what the router should currently dispatch to.
type ActiveModel struct {
	Family ModelFamily
	Path   string // local model file path; ignored for ModelFamilyRemote
}

// TranscriptionResult carries the router's output and the bookkeeping the
// Dictation Controller needs for its dictation_complete log event.
type TranscriptionResult struct {
	Text    string
	Backend ModelFamily
	RTF     float64 // real-time factor: wall-clock elapsed / audio duration
}

// TranscriptionRouter dispatches to the correct Transcriber by model
// family, warming up backends lazily and only re-warming when the active
// model actually changes.
type TranscriptionRouter struct {
	accelerated Transcriber
	portable    Transcriber
	remote      Transcriber

	lastWarmed map[ModelFamily]string
}

// NewTranscriptionRouter wires the three backend instances. Any of them
// may be nil if that family is unavailable on this install (e.g. no
// Core ML support in this build).
func NewTranscriptionRouter(accelerated, portable, remote Transcriber) *TranscriptionRouter {
	return &TranscriptionRouter{
		accelerated: accelerated,
		portable:    portable,
		remote:      remote,
		lastWarmed:  make(map[ModelFamily]string),
	}
}

func (r *TranscriptionRouter) backendFor(family ModelFamily) Transcriber {
	switch family {
	case ModelFamilyAccelerated:
		return r.accelerated
	case ModelFamilyPortable:
		return r.portable
	default:
		return r.remote
	}
}

// Dispatch warms up the backend for model (if its path changed since the
// last dispatch to that family) and transcribes samples. On failure, the
// caller is expected to retain samples itself (the Audio Capture component
// already owns that responsibility as the Retained Utterance).
func (r *TranscriptionRouter) Dispatch(model ActiveModel, samples []float32, language string, prompt PromptContext) (TranscriptionResult, error) {
	backend := r.backendFor(model.Family)
	if backend == nil {
		return TranscriptionResult{}, newTranscriberError(ErrKindModelNotLoaded, "backend unavailable for this install")
	}

	if r.lastWarmed[model.Family] != model.Path {
		if err := backend.WarmUp(model.Path); err != nil {
			return TranscriptionResult{}, err
		}
		r.lastWarmed[model.Family] = model.Path
	}

	audioSeconds := float64(len(samples)) / float64(audioSampleRate)
	start := time.Now()
	text, err := backend.Transcribe(samples, language, prompt)
	elapsed := time.Since(start)

	if err != nil {
		return TranscriptionResult{}, err
	}

	rtf := 0.0
	if audioSeconds > 0 {
		rtf = elapsed.Seconds() / audioSeconds
	}
	return TranscriptionResult{Text: text, Backend: model.Family, RTF: rtf}, nil
}
