package main

import (
	"context"
	"errors"
	"time"
	"unsafe"
)

// ErrPermissionDenied is returned when the OS's simulated-input permission
// (Accessibility-class) has not been granted.
var ErrPermissionDenied = errors.New("text injector: simulated-input (Accessibility) permission not granted")

const pasteRestoreDelay = 100 * time.Millisecond

// pasteboardSnapshot is an opaque handle to a captured multi-representation
// clipboard snapshot, owned by whichever pasteboardBackend produced it.
type pasteboardSnapshot unsafe.Pointer

// pasteboardBackend abstracts the OS clipboard + synthesized-keystroke
// primitives so TextInjector's restore/permission logic is testable
// without CGo.
type pasteboardBackend interface {
	Save() pasteboardSnapshot
	Restore(pasteboardSnapshot)
	FreeSnapshot(pasteboardSnapshot)
	SetString(text string)
	AccessibilityTrusted(prompt bool) bool
	PostPasteKeystroke() bool
}

// TextInjector implements the paste(text) operation: capture every
// clipboard representation, write the transcript, verify the
// simulated-input permission, synthesize a Cmd+V keystroke, and restore
// the prior clipboard contents after ~100ms once the keystroke has been
// attempted. When the permission is missing, the transcript stays on the
// clipboard and nothing is restored; when autoPaste is false, the
// transcript is only written to the clipboard (no snapshot, no restore).
type TextInjector struct {
	backend pasteboardBackend
	sleep   func(time.Duration)
}

// NewTextInjector creates the production Text Injector backed by the real
// NSPasteboard bindings.
func NewTextInjector() *TextInjector {
	return &TextInjector{backend: realPasteboardBackend{}, sleep: time.Sleep}
}

// newTextInjectorWithBackend wires a custom backend (tests only).
func newTextInjectorWithBackend(b pasteboardBackend) *TextInjector {
	return &TextInjector{backend: b, sleep: func(time.Duration) {}}
}

// PromptPermission triggers the Accessibility permission dialog if it has
// not yet been decided, so the first dictation's paste doesn't also have to
// surface a cold permission prompt mid-flow.
func (t *TextInjector) PromptPermission() bool {
	return t.backend.AccessibilityTrusted(true)
}

// Paste implements the injector interface consumed by the Dictation
// Controller. When autoPaste is false, it only writes text to the
// clipboard — no keystroke is synthesized and nothing is restored, per the
// auto_paste=false rule (plain clipboard write, default is to restore after
// an actual paste, not to paste unconditionally).
func (t *TextInjector) Paste(ctx context.Context, text string, autoPaste bool) error {
	if text == "" {
		return nil
	}

	if !autoPaste {
		t.backend.SetString(text)
		return nil
	}

	snap := t.backend.Save()
	t.backend.SetString(text)

	if !t.backend.AccessibilityTrusted(true) {
		// Leave the transcript on the clipboard per the missing-permission
		// fallback instead of restoring immediately.
		t.backend.FreeSnapshot(snap)
		return ErrPermissionDenied
	}

	ok := t.backend.PostPasteKeystroke()
	go func() {
		t.sleep(pasteRestoreDelay)
		t.backend.Restore(snap)
		t.backend.FreeSnapshot(snap)
	}()

	if !ok {
		return errors.New("text injector: failed to synthesize paste keystroke")
	}
	return nil
}
