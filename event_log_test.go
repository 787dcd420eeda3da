package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventLogWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")

	el, err := NewEventLog(path)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}

	el.Info("hotkey", "registered", map[string]any{"shortcut": "ctrl+space"})
	el.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines; want 1: %q", len(lines), data)
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &parsed); err != nil {
		t.Fatalf("line is not valid JSON: %v", err)
	}
	for _, field := range []string{"ts", "level", "app_session", "category", "event", "shortcut"} {
		if _, ok := parsed[field]; !ok {
			t.Errorf("missing field %q in %v", field, parsed)
		}
	}
	if parsed["event"] != "registered" {
		t.Errorf("event = %v; want %q", parsed["event"], "registered")
	}
}

func TestEventLogFilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "events.log")

	el, err := NewEventLog(path)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	el.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v; want 0600", perm)
	}

	dirInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Stat dir: %v", err)
	}
	if perm := dirInfo.Mode().Perm(); perm != 0o700 {
		t.Errorf("dir mode = %v; want 0700", perm)
	}
}

func TestEventLogDictationSessionTagging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	el, err := NewEventLog(path)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}

	id := el.BeginDictationSession()
	if id == "" {
		t.Fatal("BeginDictationSession() returned empty id")
	}
	el.LogDictationComplete(DictationCompleteFields{Success: true, ResultChars: 5})
	el.EndDictationSession()
	el.Close()

	data, _ := os.ReadFile(path)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	found := false
	for scanner.Scan() {
		var parsed map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &parsed); err != nil {
			continue
		}
		if parsed["event"] == "dictation_complete" {
			found = true
			if parsed["dictation_session"] != id {
				t.Errorf("dictation_session = %v; want %v", parsed["dictation_session"], id)
			}
			if _, ok := parsed["result_chars"]; !ok {
				t.Error("missing result_chars field")
			}
			if _, ok := parsed["transcript"]; ok {
				t.Error("transcript text must never be logged")
			}
		}
	}
	if !found {
		t.Fatal("dictation_complete event not found in log")
	}
}

func TestEventLogFlushesOnThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	el, err := NewEventLog(path)
	if err != nil {
		t.Fatalf("NewEventLog: %v", err)
	}
	for i := 0; i < eventLogFlushThreshold+1; i++ {
		el.Debug("test", "burst", nil)
	}
	time.Sleep(50 * time.Millisecond) // writer goroutine drains asynchronously
	// Read before Close, so the lines present come from the threshold flush
	// and not from the final flush that Close performs.
	data, _ := os.ReadFile(path)
	el.Close()

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != eventLogFlushThreshold+1 {
		t.Errorf("got %d lines; want %d", len(lines), eventLogFlushThreshold+1)
	}
}
