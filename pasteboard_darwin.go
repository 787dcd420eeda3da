package main

/*
#cgo LDFLAGS: -framework Cocoa -framework ApplicationServices
#include <stdlib.h>
#include "pasteboard_darwin.h"
*/
import "C"

import "unsafe"

// realPasteboardBackend wraps the NSPasteboard CGo bindings in
// pasteboard_darwin.m behind the pasteboardBackend interface so
// TextInjector's restore/permission logic can be unit tested without CGo.
type realPasteboardBackend struct{}

func (realPasteboardBackend) Save() pasteboardSnapshot {
	return pasteboardSnapshot(unsafe.Pointer(C.vocalis_pb_save()))
}

func (realPasteboardBackend) Restore(snap pasteboardSnapshot) {
	C.vocalis_pb_restore((*C.vocalis_pb_snapshot)(snap))
}

func (realPasteboardBackend) FreeSnapshot(snap pasteboardSnapshot) {
	C.vocalis_pb_snapshot_free((*C.vocalis_pb_snapshot)(snap))
}

func (realPasteboardBackend) SetString(text string) {
	cstr := C.CString(text)
	defer C.free(unsafe.Pointer(cstr))
	C.vocalis_pb_set_string(cstr)
}

func (realPasteboardBackend) AccessibilityTrusted(prompt bool) bool {
	return bool(C.vocalis_accessibility_trusted(C.bool(prompt)))
}

func (realPasteboardBackend) PostPasteKeystroke() bool {
	return bool(C.vocalis_post_paste_keystroke())
}
