package main

/*
#cgo LDFLAGS: -framework ApplicationServices -framework CoreFoundation -framework IOKit
#include <stdlib.h>
#include "eventtap_darwin.h"
*/
import "C"

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// activeEventTap holds the single currently-registered event-tap backend,
// if any. The C callback has no per-tap context pointer to carry (the
// cgo-exported function signature is fixed), so HotkeyEngine's invariant
// that at most one backend is active at a time lets a single package-level
// slot stand in for a dispatch table.
var activeEventTap atomic.Pointer[realEventTapBackend]

//export goEventTapCallback
func goEventTapCallback(eventType C.int, keyCode C.int64_t, flags C.uint64_t) {
	b := activeEventTap.Load()
	if b == nil {
		return
	}
	b.handle(int(eventType), int32(keyCode), uint32(flags))
}

// realEventTapBackend wraps a CGEventTap installed in listen-only mode,
// implementing the modifier-only "candidate" trigger semantics and the
// Fn-qualified full-chord matching described in SPEC_FULL.md §4.4.
type realEventTapBackend struct {
	mu       sync.Mutex
	shortcut Shortcut
	tap      unsafe.Pointer
	downCh   chan struct{}
	upCh     chan struct{}

	// candidate tracks whether an armed modifiers-only trigger is still
	// live (true between "tracked modifiers became fully pressed" and
	// either "all modifiers released" or "a non-modifier key interrupted
	// it").
	candidate bool
}

func newRealEventTapBackend(s Shortcut) (hotkeyBackend, error) {
	return &realEventTapBackend{
		shortcut: s,
		downCh:   make(chan struct{}, 4),
		upCh:     make(chan struct{}, 4),
	}, nil
}

func (b *realEventTapBackend) Register() error {
	if !bool(C.event_tap_permission_granted()) {
		return ErrPermissionMissing
	}
	tap := C.start_event_tap()
	if tap == nil {
		return ErrPermissionMissing
	}
	b.tap = unsafe.Pointer(tap)
	activeEventTap.Store(b)
	return nil
}

func (b *realEventTapBackend) Unregister() error {
	activeEventTap.CompareAndSwap(b, nil)
	if b.tap != nil {
		C.stop_event_tap(b.tap)
		b.tap = nil
	}
	return nil
}

func (b *realEventTapBackend) KeyDown() <-chan struct{} { return b.downCh }
func (b *realEventTapBackend) KeyUp() <-chan struct{}   { return b.upCh }

// handle runs on whatever thread CGEventTap's run-loop callback fires on
// (the main thread — the tap source is added to CFRunLoopGetMain in
// eventtap_darwin.c).
func (b *realEventTapBackend) handle(eventType int, keyCode int32, rawFlags uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch eventType {
	case C.VOCALIS_EVENT_TAP_DISABLED:
		// Re-enabled synchronously inside tap_callback; nothing to relay,
		// but drop any armed candidate since we may have missed events.
		b.candidate = false

	case C.VOCALIS_EVENT_KEYDOWN, C.VOCALIS_EVENT_KEYUP:
		if b.shortcut.KeyCode == NoKey {
			if eventType == C.VOCALIS_EVENT_KEYDOWN {
				// Any non-modifier key press cancels an in-flight candidate
				// so "⌘ then C" never fires "⌘ alone".
				b.candidate = false
			}
			return
		}
		if keyCode != b.shortcut.KeyCode || !modifiersMatch(rawFlags, b.shortcut.Modifiers) {
			return
		}
		if eventType == C.VOCALIS_EVENT_KEYDOWN {
			nonBlockingSend(b.downCh)
		} else {
			nonBlockingSend(b.upCh)
		}

	case C.VOCALIS_EVENT_FLAGSCHANGED:
		if b.shortcut.KeyCode != NoKey {
			return // full chords are matched on the key event, not here
		}
		b.handleModifiersOnlyLocked(rawFlags)
	}
}

// handleModifiersOnlyLocked implements the candidate state machine.
func (b *realEventTapBackend) handleModifiersOnlyLocked(rawFlags uint32) {
	want := toOSFlags(b.shortcut.Modifiers)
	tracked := fromOSFlags(rawFlags) & b.shortcut.Modifiers
	allClear := fromOSFlags(rawFlags) == 0

	switch {
	case rawFlags&want == want && !allClear && !b.candidate:
		b.candidate = true
		nonBlockingSend(b.downCh)
	case allClear && b.candidate:
		b.candidate = false
		nonBlockingSend(b.upCh)
	case allClear:
		b.candidate = false
	case tracked != b.shortcut.Modifiers:
		// One of the tracked modifiers was released before all modifiers
		// cleared (e.g. holding ⌘⇧ and releasing ⇧ first): treat as
		// cancellation, matching "no trigger unless the exact tracked set
		// returns cleanly to zero".
		b.candidate = false
	}
}

// modifiersMatch reports whether rawFlags carries at least the modifiers
// in want (extra, unrelated OS flags are ignored).
func modifiersMatch(rawFlags uint32, want ModifierBits) bool {
	wantFlags := toOSFlags(want)
	return rawFlags&wantFlags == wantFlags
}

func nonBlockingSend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
