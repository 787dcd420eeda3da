package main

import "strings"

// ModifierBits is a bitset over the OS modifier keys plus the synthetic Fn bit.
type ModifierBits uint32

const (
	ModControl ModifierBits = 1 << iota
	ModOption
	ModShift
	ModCommand
	// ModFn does not collide with any OS modifier bit (those top out at 1<<3
	// above); chosen as 1<<16 to leave headroom for any OS encoding we map
	// from/to in fromOSFlags/toOSFlags.
	ModFn ModifierBits = 1 << 16
)

// NoKey is the sentinel key_code for a modifiers-only shortcut (e.g. "⌘ alone").
const NoKey int32 = -1

// Shortcut is the canonical, OS-agnostic representation of a keyboard
// shortcut: a key code plus a modifier bitset. KeyCode == NoKey means the
// shortcut is modifiers-only.
type Shortcut struct {
	KeyCode   int32
	Modifiers ModifierBits
}

// Raw CGEventFlags bit positions (ApplicationServices/CoreGraphics),
// distinct from our canonical ModifierBits positions. macOS does expose a
// first-class Fn flag (NX_SECONDARYFNMASK) at the OS level — but
// golang.design/x/hotkey's Modifier enum (the native-registration backend)
// has no way to request it, which is exactly why a Fn-carrying Shortcut
// forces the event-tap backend (requiresEventTap).
const (
	cgFlagControl uint32 = 0x00040000
	cgFlagOption  uint32 = 0x00080000
	cgFlagShift   uint32 = 0x00020000
	cgFlagCommand uint32 = 0x00100000
	cgFlagFn      uint32 = 0x00800000

	cgFlagAllRecognized = cgFlagControl | cgFlagOption | cgFlagShift | cgFlagCommand | cgFlagFn
)

// fromOSFlags maps a raw CGEventFlags word onto the canonical
// ModifierBits representation.
func fromOSFlags(flags uint32) ModifierBits {
	var m ModifierBits
	if flags&cgFlagControl != 0 {
		m |= ModControl
	}
	if flags&cgFlagOption != 0 {
		m |= ModOption
	}
	if flags&cgFlagShift != 0 {
		m |= ModShift
	}
	if flags&cgFlagCommand != 0 {
		m |= ModCommand
	}
	if flags&cgFlagFn != 0 {
		m |= ModFn
	}
	return m
}

// toOSFlags is the inverse of fromOSFlags.
func toOSFlags(m ModifierBits) uint32 {
	var flags uint32
	if m&ModControl != 0 {
		flags |= cgFlagControl
	}
	if m&ModOption != 0 {
		flags |= cgFlagOption
	}
	if m&ModShift != 0 {
		flags |= cgFlagShift
	}
	if m&ModCommand != 0 {
		flags |= cgFlagCommand
	}
	if m&ModFn != 0 {
		flags |= cgFlagFn
	}
	return flags
}

// isModifierKey reports whether keyCode is one of the OS key codes that
// represents a modifier key being pressed in isolation (as opposed to a
// "regular" key). macOS virtual key codes for the four recognized
// modifiers plus Fn.
func isModifierKey(keyCode int32) bool {
	switch keyCode {
	case 0x3B, 0x3E, // kVK_Control, kVK_RightControl
		0x3A, 0x3D, // kVK_Option, kVK_RightOption
		0x38, 0x3C, // kVK_Shift, kVK_RightShift
		0x37, 0x36, // kVK_Command, kVK_RightCommand
		0x3F: // kVK_Function
		return true
	default:
		return false
	}
}

// requiresEventTap reports whether s can only be observed via the
// event-tap backend: modifiers-only shortcuts and anything involving Fn
// are invisible to the native hotkey-registration API.
func requiresEventTap(s Shortcut) bool {
	return s.KeyCode == NoKey || s.Modifiers&ModFn != 0
}

// modifierRenderOrder fixes the display order of modifier glyphs:
// control, option/alt, shift, command/super, matching the external
// rendering convention.
var modifierRenderOrder = []struct {
	bit   ModifierBits
	glyph string
}{
	{ModControl, "⌃"},
	{ModOption, "⌥"},
	{ModShift, "⇧"},
	{ModCommand, "⌘"},
}

var keyNames = map[int32]string{
	49: "Space", 48: "Tab", 36: "Return",
	0: "A", 11: "B", 8: "C", 2: "D", 14: "E", 3: "F", 5: "G", 4: "H",
	34: "I", 38: "J", 40: "K", 37: "L", 46: "M", 45: "N", 31: "O", 35: "P",
	12: "Q", 15: "R", 1: "S", 17: "T", 32: "U", 9: "V", 13: "W", 7: "X",
	16: "Y", 6: "Z",
}

// render returns a human-readable rendering of s, e.g. "⌃⇧Space", "⌘",
// "Fn+Z". Rendering is a pure function of s: two equal shortcuts always
// render identically, and two differently-rendered shortcuts are never
// equal (see shortcut_test.go for the round-trip property).
func render(s Shortcut) string {
	var b strings.Builder
	if s.Modifiers&ModFn != 0 {
		b.WriteString("Fn+")
	}
	for _, m := range modifierRenderOrder {
		if s.Modifiers&m.bit != 0 {
			b.WriteString(m.glyph)
		}
	}
	if s.KeyCode == NoKey {
		return b.String()
	}
	if name, ok := keyNames[s.KeyCode]; ok {
		b.WriteString(name)
	} else {
		b.WriteString("Key")
	}
	return b.String()
}
