package main

/*
#cgo darwin CFLAGS: -x objective-c
#cgo darwin LDFLAGS: -framework ApplicationServices -framework Foundation -framework AppKit
#include <stdlib.h>
#include "accessibility_darwin.h"
*/
import "C"
import "unsafe"

// captureContextText uses macOS Accessibility APIs via CGO to read the last
// 200 characters of the text value of the focused element in the currently
// active application window; the cursor position is not consulted. Returns an empty string if permission is missing
// or no text field is focused.
func captureContextText() string {
	cstr := C.get_active_context_text(200)
	if cstr != nil {
		defer C.free(unsafe.Pointer(cstr))
		return C.GoString(cstr)
	}
	return ""
}
