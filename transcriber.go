package main

import "fmt"

// TranscriberErrorKind classifies why a transcription attempt failed, so
// the Dictation Controller can decide whether a retry is meaningful.
type TranscriberErrorKind int

const (
	ErrKindModelNotLoaded TranscriberErrorKind = iota
	ErrKindNoAudio
	ErrKindInferenceError
	ErrKindNetwork
	ErrKindUnauthorized
	ErrKindPayloadTooLarge
)

func (k TranscriberErrorKind) String() string {
	switch k {
	case ErrKindModelNotLoaded:
		return "ModelNotLoaded"
	case ErrKindNoAudio:
		return "NoAudio"
	case ErrKindInferenceError:
		return "InferenceError"
	case ErrKindNetwork:
		return "Network"
	case ErrKindUnauthorized:
		return "Unauthorized"
	case ErrKindPayloadTooLarge:
		return "PayloadTooLarge"
	default:
		return "Unknown"
	}
}

// TranscriberError is the error type every Transcriber backend returns.
type TranscriberError struct {
	Kind TranscriberErrorKind
	Msg  string
}

func (e *TranscriberError) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func newTranscriberError(kind TranscriberErrorKind, msg string) *TranscriberError {
	return &TranscriberError{Kind: kind, Msg: msg}
}

// Retryable reports whether the Dictation Controller should offer
// retry_last_transcription() for this failure kind (everything except
// NoAudio and Unauthorized, per the transcription-failure-handling rules).
func (e *TranscriberError) Retryable() bool {
	return e.Kind != ErrKindNoAudio && e.Kind != ErrKindUnauthorized
}

// PromptContext bundles the custom-vocabulary prefix and trailing previous
// transcript fed to a backend as decoding prefill context.
type PromptContext struct {
	CustomVocabulary string
	PreviousText     string
}

const maxPromptChars = 896

// buildPrompt concatenates the custom vocabulary and the previous context,
// keeping only the last maxPromptChars characters of the result before a
// backend tokenizes it.
func buildPrompt(p PromptContext) string {
	combined := p.CustomVocabulary
	if combined != "" && p.PreviousText != "" {
		combined += " "
	}
	combined += p.PreviousText
	return lastNChars(combined, maxPromptChars)
}

// Transcriber is implemented by every transcription backend (local
// accelerated, local portable, remote HTTP).
type Transcriber interface {
	IsReady() bool
	WarmUp(modelPath string) error
	Transcribe(samples []float32, language string, prompt PromptContext) (string, error)
}
