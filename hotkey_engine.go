package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrHotkeyConflict is returned when the shortcut is already registered by another application.
var ErrHotkeyConflict = errors.New("hotkey: key combination already registered by another application")

// ErrHotkeyInvalid is returned when a Shortcut cannot be registered (a key code with no native key mapping).
var ErrHotkeyInvalid = errors.New("hotkey: invalid shortcut")

// ErrPermissionMissing is returned by the event-tap backend when Input
// Monitoring has not been granted.
var ErrPermissionMissing = errors.New("hotkey: input monitoring permission not granted")

// hotkeyBackend abstracts the two interchangeable registration strategies
// so HotkeyEngine and its tests never depend on CGo or a real macOS session.
type hotkeyBackend interface {
	Register() error
	Unregister() error
	KeyDown() <-chan struct{}
	KeyUp() <-chan struct{}
}

// backendFactory builds a backend for a given Shortcut without registering it.
type backendFactory func(Shortcut) (hotkeyBackend, error)

// HotkeyEngine registers a single global Shortcut and delivers key-down /
// key-up callbacks to the Dictation Controller. It owns exactly one active
// backend at a time — native registration or event tap — chosen by
// requiresEventTap. Generalizes the predecessor's combo-string
// HotkeyService into the Shortcut-keyed, dual-callback model required here.
type HotkeyEngine struct {
	mu         sync.Mutex
	shortcut   Shortcut
	backend    hotkeyBackend
	registered atomic.Bool
	suspended  atomic.Bool

	shuttingDown atomic.Bool
	doneCh       chan struct{}
	parentCtx    context.Context
	cancel       context.CancelFunc

	onKeyDown func()
	onKeyUp   func()

	nativeFactory   backendFactory
	eventTapFactory backendFactory
}

// NewHotkeyEngine returns a HotkeyEngine backed by the real macOS native
// hotkey API and the real CGEventTap backend.
func NewHotkeyEngine() *HotkeyEngine {
	return &HotkeyEngine{
		nativeFactory:   newRealNativeBackend,
		eventTapFactory: newRealEventTapBackend,
	}
}

// newHotkeyEngineWithFactories builds a HotkeyEngine with injectable backend
// factories (tests only).
func newHotkeyEngineWithFactories(native, eventTap backendFactory) *HotkeyEngine {
	return &HotkeyEngine{nativeFactory: native, eventTapFactory: eventTap}
}

// chooseFactory returns the factory appropriate for s per requiresEventTap.
func (e *HotkeyEngine) chooseFactory(s Shortcut) backendFactory {
	if requiresEventTap(s) {
		return e.eventTapFactory
	}
	return e.nativeFactory
}

// Start registers s and launches a listener goroutine that invokes
// onKeyDown/onKeyUp for each physical event, in event order. The goroutine
// exits when ctx is cancelled. Returns ErrHotkeyConflict, ErrHotkeyInvalid,
// or ErrPermissionMissing.
func (e *HotkeyEngine) Start(ctx context.Context, s Shortcut, onKeyDown, onKeyUp func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registerLocked(ctx, s, onKeyDown, onKeyUp)
}

func (e *HotkeyEngine) registerLocked(ctx context.Context, s Shortcut, onKeyDown, onKeyUp func()) error {
	// Unconditionally tear down any previously active backend before
	// starting the newly selected one — per the "toggling backends while
	// active" open question resolved in SPEC_FULL.md §9.
	e.teardownLocked()

	factory := e.chooseFactory(s)
	backend, err := factory(s)
	if err != nil {
		return err
	}
	if err := backend.Register(); err != nil {
		return err
	}

	e.backend = backend
	e.shortcut = s
	e.registered.Store(true)
	e.onKeyDown = onKeyDown
	e.onKeyUp = onKeyUp
	e.parentCtx = ctx

	listenCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	doneCh := make(chan struct{})
	e.doneCh = doneCh

	down, up := backend.KeyDown(), backend.KeyUp()
	go e.listen(listenCtx, backend, down, up, onKeyDown, onKeyUp, doneCh)
	return nil
}

func (e *HotkeyEngine) listen(ctx context.Context, backend hotkeyBackend, down, up <-chan struct{}, onKeyDown, onKeyUp func(), doneCh chan struct{}) {
	defer func() {
		if !e.shuttingDown.Load() {
			backend.Unregister() //nolint:errcheck
		}
		e.registered.Store(false)
		close(doneCh)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-down:
			if !ok {
				return
			}
			if onKeyDown != nil {
				onKeyDown()
			}
		case _, ok := <-up:
			if !ok {
				return
			}
			if onKeyUp != nil {
				onKeyUp()
			}
		}
	}
}

// teardownLocked unregisters and stops the current backend's goroutine, if any.
// Caller must hold e.mu.
func (e *HotkeyEngine) teardownLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.doneCh != nil {
		select {
		case <-e.doneCh:
		case <-time.After(200 * time.Millisecond):
		}
	}
	e.backend = nil
	e.cancel = nil
	e.doneCh = nil
}

// Register re-registers a new Shortcut at runtime, tearing down the
// previous backend first. Used by the shortcut recorder to bind a new
// hotkey without restarting the app.
func (e *HotkeyEngine) Register(s Shortcut) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ctx := e.parentCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return e.registerLocked(ctx, s, e.onKeyDown, e.onKeyUp)
}

// Suspend tears down the active backend without forgetting the bound
// shortcut, so the shortcut recorder UI can quiet the engine while the
// user enters a new binding.
func (e *HotkeyEngine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.suspended.Load() {
		return
	}
	e.suspended.Store(true)
	e.teardownLocked()
	e.registered.Store(false)
}

// Resume re-registers the previously bound shortcut after Suspend.
func (e *HotkeyEngine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.suspended.Load() {
		return nil
	}
	e.suspended.Store(false)
	ctx := e.parentCtx
	if ctx == nil {
		ctx = context.Background()
	}
	return e.registerLocked(ctx, e.shortcut, e.onKeyDown, e.onKeyUp)
}

// Stop unregisters the engine permanently. Safe to call during app shutdown:
// unregisters synchronously while the host event loop is still alive, then
// waits briefly for the listener goroutine to exit.
func (e *HotkeyEngine) Stop() {
	e.shuttingDown.Store(true)
	e.mu.Lock()
	backend := e.backend
	doneCh := e.doneCh
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if backend != nil {
		backend.Unregister() //nolint:errcheck
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// IsRegistered reports whether a shortcut is currently registered.
func (e *HotkeyEngine) IsRegistered() bool {
	return e.registered.Load()
}

// Shortcut returns the currently bound shortcut.
func (e *HotkeyEngine) Shortcut() Shortcut {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shortcut
}
