package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	eventLogFlushInterval  = 1 * time.Second
	eventLogFlushThreshold = 50
	eventLogQueueCapacity  = 512
)

func init() {
	zerolog.TimestampFieldName = "ts"
}

type logEntry struct {
	build func(e *zerolog.Event)
}

// EventLog is a structured, bounded, asynchronous JSON-lines logger. Every
// call to debug/info/warn/error enqueues a line; a single writer goroutine
// drains the queue on a 1s timer or once it holds more than 50 entries.
type EventLog struct {
	logger zerolog.Logger
	queue  chan logEntry

	mu                sync.RWMutex
	appSession        string
	dictationSession  string

	done chan struct{}
}

// NewEventLog creates an EventLog writing JSON lines to path, rotated at
// 5 MB with 5 generations retained. The containing directory and file are
// created owner-only.
func NewEventLog(path string) (*EventLog, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	// Touch the file up front so permissions land on creation, not on
	// lumberjack's first internal rotate-open.
	if _, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err != nil {
		return nil, err
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5, // MB
		MaxBackups: 5,
		Compress:   false,
	}

	el := &EventLog{
		logger:     zerolog.New(writer).With().Timestamp().Logger(),
		queue:      make(chan logEntry, eventLogQueueCapacity),
		appSession: uuid.NewString(),
		done:       make(chan struct{}),
	}
	go el.run()
	return el, nil
}

func (e *EventLog) run() {
	ticker := time.NewTicker(eventLogFlushInterval)
	defer ticker.Stop()

	var pending []logEntry
	flush := func() {
		for _, entry := range pending {
			ev := e.logger.Log()
			entry.build(ev)
			ev.Send()
		}
		pending = pending[:0]
	}

	for {
		select {
		case entry, ok := <-e.queue:
			if !ok {
				flush()
				close(e.done)
				return
			}
			pending = append(pending, entry)
			if len(pending) > eventLogFlushThreshold {
				flush()
			}
		case <-ticker.C:
			if len(pending) > 0 {
				flush()
			}
		}
	}
}

func (e *EventLog) enqueue(level, category, event string, fields map[string]any) {
	e.mu.RLock()
	appSession := e.appSession
	dictationSession := e.dictationSession
	e.mu.RUnlock()

	entry := logEntry{build: func(ev *zerolog.Event) {
		ev.Str("level", level).
			Str("app_session", appSession).
			Str("category", category).
			Str("event", event)
		if dictationSession != "" {
			ev.Str("dictation_session", dictationSession)
		}
		for k, v := range fields {
			ev.Interface(k, v)
		}
	}}

	select {
	case e.queue <- entry:
	default:
		// Queue overflow: drop the entry rather than block the caller —
		// logging must never become the bottleneck for a latency-sensitive
		// dictation path.
	}
}

func (e *EventLog) Debug(category, event string, fields map[string]any) {
	e.enqueue("debug", category, event, fields)
}
func (e *EventLog) Info(category, event string, fields map[string]any) {
	e.enqueue("info", category, event, fields)
}
func (e *EventLog) Warn(category, event string, fields map[string]any) {
	e.enqueue("warn", category, event, fields)
}
func (e *EventLog) Error(category, event string, fields map[string]any) {
	e.enqueue("error", category, event, fields)
}

// BeginDictationSession starts a new per-utterance session id, returned for
// correlation, and tags subsequent log lines with it until EndDictationSession.
func (e *EventLog) BeginDictationSession() string {
	id := uuid.NewString()
	e.mu.Lock()
	e.dictationSession = id
	e.mu.Unlock()
	return id
}

// EndDictationSession clears the active dictation session tag.
func (e *EventLog) EndDictationSession() {
	e.mu.Lock()
	e.dictationSession = ""
	e.mu.Unlock()
}

// LogDictationComplete implements dictationEventLogger for the Dictation
// Controller. Transcript text is never included — only its length.
func (e *EventLog) LogDictationComplete(f DictationCompleteFields) {
	e.Info("dictation", "dictation_complete", map[string]any{
		"recording_ms":     f.RecordingMS,
		"transcription_ms": f.TranscriptionMS,
		"samples":          f.Samples,
		"backend":          int(f.Backend),
		"language":         f.Language,
		"result_chars":     f.ResultChars,
		"success":          f.Success,
	})
}

// Close flushes any remaining entries and stops the writer goroutine.
func (e *EventLog) Close() {
	close(e.queue)
	<-e.done
}
