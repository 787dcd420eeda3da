package main

import (
	"context"
	"embed"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	app := NewApp()

	// Application menu — keyboard shortcuts while window is focused.
	appMenu := menu.NewMenu()
	fileMenu := appMenu.AddSubmenu("vocalis")
	fileMenu.AddText("Show / Hide", keys.CmdOrCtrl(","), func(_ *menu.CallbackData) {
		app.ToggleWindow()
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(_ *menu.CallbackData) {
		app.Quit()
	})

	err := wails.Run(&options.App{
		Title:     "vocalis",
		Width:     360,
		Height:    420,
		MinWidth:  300,
		MinHeight: 380,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 18, G: 18, B: 18, A: 0},
		OnStartup:        app.startup,
		Bind:             []interface{}{app},
		Mac: &mac.Options{
			TitleBar:             mac.TitleBarHiddenInset(),
			Appearance:           mac.NSAppearanceNameDarkAqua,
			WebviewIsTransparent: true,
			WindowIsTranslucent:  true,
			About: &mac.AboutInfo{
				Title:   "vocalis",
				Message: "A fast, private, offline dictation tool.",
			},
		},
		StartHidden:       true, // window hidden at launch; systray icon reveals it
		HideWindowOnClose: true, // X button hides, doesn't quit
		Menu:              appMenu,
		OnBeforeClose: func(ctx context.Context) (prevent bool) {
			return false
		},
		Logger:   logger.NewDefaultLogger(),
		LogLevel: logger.WARNING,
	})

	if err != nil {
		app.eventLog.Error("app", "wails_run_failed", map[string]any{"error": err.Error()})
		app.eventLog.Close()
		os.Exit(1)
	}
}
