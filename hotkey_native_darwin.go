package main

import (
	"sync"

	"golang.design/x/hotkey"
)

// realNativeBackend wraps golang.design/x/hotkey for full (modifier +
// non-modifier) chords. The hotkey.Hotkey is created lazily in Register()
// to avoid spawning CGo goroutines at construction time, which would leak
// into unit tests — matching the predecessor's realHotkeyBackend idiom.
type realNativeBackend struct {
	hk        *hotkey.Hotkey
	mods      []hotkey.Modifier
	key       hotkey.Key
	downCh    chan struct{}
	upCh      chan struct{}
	closeOnce sync.Once
}

// newRealNativeBackend builds a backend for s. Fails with ErrHotkeyInvalid
// if s has no key code (native registration cannot express modifiers-only
// shortcuts — that's the event-tap backend's job) or no recognized key.
func newRealNativeBackend(s Shortcut) (hotkeyBackend, error) {
	key, ok := nativeKeyFor(s.KeyCode)
	if !ok {
		return nil, ErrHotkeyInvalid
	}
	return &realNativeBackend{mods: nativeModsFor(s.Modifiers), key: key}, nil
}

func (r *realNativeBackend) Register() error {
	r.hk = hotkey.New(r.mods, r.key)
	if err := r.hk.Register(); err != nil {
		_ = r.hk.Unregister()
		r.hk = nil
		return ErrHotkeyConflict
	}
	r.downCh = make(chan struct{}, 4)
	r.upCh = make(chan struct{}, 4)

	down := r.hk.Keydown()
	up := r.hk.Keyup()
	go func() {
		for range down {
			select {
			case r.downCh <- struct{}{}:
			default:
			}
		}
		r.closeOnce.Do(func() { close(r.downCh); close(r.upCh) })
	}()
	go func() {
		for range up {
			select {
			case r.upCh <- struct{}{}:
			default:
			}
		}
	}()
	return nil
}

func (r *realNativeBackend) Unregister() error {
	if r.hk == nil {
		return nil
	}
	return r.hk.Unregister()
}

func (r *realNativeBackend) KeyDown() <-chan struct{} { return r.downCh }
func (r *realNativeBackend) KeyUp() <-chan struct{}   { return r.upCh }

var nativeModMap = map[ModifierBits]hotkey.Modifier{
	ModControl: hotkey.ModCtrl,
	ModOption:  hotkey.ModOption,
	ModShift:   hotkey.ModShift,
	ModCommand: hotkey.ModCmd,
}

func nativeModsFor(bits ModifierBits) []hotkey.Modifier {
	var mods []hotkey.Modifier
	for bit, mod := range nativeModMap {
		if bits&bit != 0 {
			mods = append(mods, mod)
		}
	}
	return mods
}

var nativeKeyMap = map[int32]hotkey.Key{
	49: hotkey.KeySpace, 48: hotkey.KeyTab, 36: hotkey.KeyReturn,
	0: hotkey.KeyA, 11: hotkey.KeyB, 8: hotkey.KeyC, 2: hotkey.KeyD,
	14: hotkey.KeyE, 3: hotkey.KeyF, 5: hotkey.KeyG, 4: hotkey.KeyH,
	34: hotkey.KeyI, 38: hotkey.KeyJ, 40: hotkey.KeyK, 37: hotkey.KeyL,
	46: hotkey.KeyM, 45: hotkey.KeyN, 31: hotkey.KeyO, 35: hotkey.KeyP,
	12: hotkey.KeyQ, 15: hotkey.KeyR, 1: hotkey.KeyS, 17: hotkey.KeyT,
	32: hotkey.KeyU, 9: hotkey.KeyV, 13: hotkey.KeyW, 7: hotkey.KeyX,
	16: hotkey.KeyY, 6: hotkey.KeyZ,
}

func nativeKeyFor(code int32) (hotkey.Key, bool) {
	k, ok := nativeKeyMap[code]
	return k, ok
}
