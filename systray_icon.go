package main

import (
	_ "embed"

	"github.com/getlantern/systray"
)

//go:embed assets/icon-template.png
var iconBytes []byte

// StartSystray launches the system-tray icon in a background goroutine.
// It must be called AFTER Wails startup() fires so the Cocoa run loop is
// already running — calling it earlier causes a deadlock.
func StartSystray(app *App) {
	go systray.Run(
		func() { onSystrayReady(app) },
		func() { /* onExit — nothing to clean up */ },
	)
}

func onSystrayReady(app *App) {
	HideFromDock(app.eventLog) // runs on Cocoa thread — safe to call NSApp here
	systray.SetTemplateIcon(iconBytes, iconBytes)
	systray.SetTooltip(systrayTooltips[StateIdle])

	mToggle := systray.AddMenuItem("Show / Hide", "Toggle the vocalis window")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit vocalis", "Exit the application")

	go func() {
		for {
			select {
			case <-mToggle.ClickedCh:
				app.ToggleWindow()
			case <-mQuit.ClickedCh:
				systray.Quit()
				app.Quit()
				return
			}
		}
	}()
}

// systrayTooltips gives each controller state its own menu-bar tooltip
// text; the icon itself stays a static template image (tinted by macOS to
// match light/dark menu bar), so state is only distinguishable by tooltip
// and the settings window's own indicator.
var systrayTooltips = map[ControllerState]string{
	StateIdle:         "vocalis — click to show",
	StateRecording:    "vocalis — listening…",
	StateTranscribing: "vocalis — transcribing…",
	StateError:        "vocalis — last dictation failed",
}

// SetSysTrayState updates the menu-bar tooltip to reflect s. Safe to call
// before the tray is ready (systray.SetTooltip no-ops until onSystrayReady
// has run).
func SetSysTrayState(s ControllerState) {
	if tip, ok := systrayTooltips[s]; ok {
		systray.SetTooltip(tip)
	}
}
