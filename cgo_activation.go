package main

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework AppKit
#import <AppKit/AppKit.h>

// hideFromDock sets the process activation policy to Accessory,
// which removes the Dock icon and Task Switcher entry. Returns 1 when the
// policy was set, 0 when the Cocoa run loop is not running yet (nothing is
// changed then); the app calls it from onSystrayReady.
int hideFromDock() {
    if ([NSApp isRunning]) {
        [NSApp setActivationPolicy:NSApplicationActivationPolicyAccessory];
        return 1;
    }
    return 0;
}
*/
import "C"

import "fmt"

// dockActivationLogger is the minimal interface HideFromDock needs from the
// Event Log to report a skipped activation-policy change.
type dockActivationLogger interface {
	Warn(category, event string, fields map[string]any)
}

// HideFromDock removes the app's Dock icon at runtime.
// No-op if called before the Cocoa run loop (e.g. in tests); logger may be
// nil, in which case the skip is silent.
func HideFromDock(logger dockActivationLogger) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Warn("app", "hide_from_dock_skipped", map[string]any{"reason": formatRecover(r)})
		}
	}()
	if C.hideFromDock() == 0 && logger != nil {
		logger.Warn("app", "hide_from_dock_skipped", map[string]any{"reason": "cocoa run loop not running"})
	}
}

func formatRecover(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(r)
}
