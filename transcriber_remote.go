package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	remoteRequestTimeout  = 60 * time.Second
	remoteMaxPayloadBytes = 25 * 1024 * 1024
)

// RemoteTranscriber posts WAV-encoded audio to a bearer-token HTTP
// transcription endpoint as a multipart form.
type RemoteTranscriber struct {
	endpoint   string
	apiKey     string
	modelID    string
	httpClient *http.Client
	ready      bool
}

// NewRemoteTranscriber creates a RemoteTranscriber targeting endpoint with
// the given bearer token and model identifier.
func NewRemoteTranscriber(endpoint, apiKey, modelID string) *RemoteTranscriber {
	return &RemoteTranscriber{
		endpoint: endpoint,
		apiKey:   apiKey,
		modelID:  modelID,
		httpClient: &http.Client{
			Timeout: remoteRequestTimeout,
			// No caching: each dictation is a one-shot POST, never replayed.
			Transport: &http.Transport{DisableKeepAlives: false},
		},
	}
}

// IsReady reports whether the endpoint and credentials are configured.
func (r *RemoteTranscriber) IsReady() bool { return r.ready }

// WarmUp validates that an endpoint and API key are configured. There is no
// remote model to prewarm; this only flips readiness.
func (r *RemoteTranscriber) WarmUp(modelPath string) error {
	if r.endpoint == "" || r.apiKey == "" {
		return newTranscriberError(ErrKindModelNotLoaded, "remote endpoint or API key not configured")
	}
	r.ready = true
	return nil
}

type remoteTranscriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads samples as a WAV file via multipart/form-data and
// parses the {text: string} JSON response.
func (r *RemoteTranscriber) Transcribe(samples []float32, language string, prompt PromptContext) (string, error) {
	if !r.ready {
		return "", newTranscriberError(ErrKindModelNotLoaded, "warm_up not called")
	}
	if len(samples) == 0 {
		return "", newTranscriberError(ErrKindNoAudio, "")
	}

	wavBytes := encodeWAV(samples)
	if len(wavBytes) > remoteMaxPayloadBytes {
		return "", newTranscriberError(ErrKindPayloadTooLarge, fmt.Sprintf("%d bytes exceeds %d byte limit", len(wavBytes), remoteMaxPayloadBytes))
	}

	body, contentType, err := buildMultipartBody(wavBytes, r.modelID, language, buildPrompt(prompt))
	if err != nil {
		return "", newTranscriberError(ErrKindInferenceError, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return "", newTranscriberError(ErrKindNetwork, err.Error())
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", newTranscriberError(ErrKindNetwork, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, remoteMaxPayloadBytes))
	if err != nil {
		return "", newTranscriberError(ErrKindNetwork, err.Error())
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return "", newTranscriberError(ErrKindUnauthorized, "")
	case http.StatusRequestEntityTooLarge:
		return "", newTranscriberError(ErrKindPayloadTooLarge, "")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newTranscriberError(ErrKindNetwork, fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed remoteTranscriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", newTranscriberError(ErrKindInferenceError, "malformed response: "+err.Error())
	}
	return trim(parsed.Text), nil
}

func buildMultipartBody(wavBytes []byte, modelID, language, prompt string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model", modelID); err != nil {
		return nil, "", err
	}
	if language != "" && language != "auto" {
		if err := w.WriteField("language", language); err != nil {
			return nil, "", err
		}
	}
	if prompt != "" {
		if err := w.WriteField("prompt", prompt); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
