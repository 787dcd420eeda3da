package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// defaultRemoteEndpoint is the HTTPS transcription endpoint used when
// Settings.Backend == "remote". Not a user-configurable preference per the
// data model — the remote API surface is a single fixed, OpenAI-compatible
// multipart endpoint; only the bearer secret and model id vary.
const defaultRemoteEndpoint = "https://api.openai.com/v1/audio/transcriptions"

// App is the owning process root: it constructs every subsystem in
// dependency order (event log → credential store → audio/transcriber
// backends → router → injector → controller → hotkey engine), wires their
// callbacks together, requests OS permissions, and hosts the window/menu
// surface Wails drives. ctx is guarded by mu. startupCh is closed once
// startup() fires so ShowWindow/Quit callers that arrive before Wails is
// ready can wait.
type App struct {
	mu        sync.RWMutex
	ctx       context.Context
	startupCh chan struct{}
	once      sync.Once

	loginItems    *LoginItemService
	settingsStore *SettingsStore
	modelCatalog  ModelCatalog
	credStore     *CredentialStore
	eventLog      *EventLog
	injector      *TextInjector
	hotkeys       *HotkeyEngine
	controller    *DictationController

	windowVisible bool
}

// NewApp constructs the full production dependency graph. Components that
// touch hardware (PortAudio, the native hotkey backend) are only exercised
// once startup() runs on the Cocoa thread; construction itself opens the log
// file and reads the remote API secret from the Keychain once, to hand it to
// the remote transcriber.
func NewApp() *App {
	// eventLog is constructed first — everything else that can fail during
	// construction logs through it instead of bare stdlib log. A failure to
	// open the primary path falls back to a temp-dir log; only a failure of
	// both has no structured logger left to report through, so it is the
	// one legitimate log.Fatalf in this file (see DESIGN.md).
	logDir, _ := os.UserHomeDir()
	eventLog, err := NewEventLog(filepath.Join(logDir, "Library", "Logs", "vocalis", "vocalis.log"))
	fellBack := false
	if err != nil {
		fellBack = true
		primaryErr := err
		eventLog, err = NewEventLog(filepath.Join(os.TempDir(), "vocalis", "vocalis.log"))
		if err != nil {
			log.Fatalf("app: failed to open event log at default path (%v) and temp dir (%v)", primaryErr, err)
		}
	}
	if fellBack {
		eventLog.Warn("app", "event_log_fallback_path", map[string]any{"dir": os.TempDir()})
	}

	loginItems, err := NewLoginItemService()
	if err != nil {
		eventLog.Warn("app", "login_item_service_unavailable", map[string]any{"error": err.Error()})
	}

	settingsStore := NewSettingsStore(eventLog)
	catalog := NewLocalModelCatalog(eventLog)
	credStore := NewCredentialStore()

	audio := NewAudioCapture(func() {
		eventLog.Warn("audio", "buffer_overflow", nil)
	})

	apiKey, err := credStore.Load()
	if err != nil && !errors.Is(err, ErrNoSecret) {
		eventLog.Warn("credential", "load_failed", map[string]any{"error": err.Error()})
	}
	remote := NewRemoteTranscriber(defaultRemoteEndpoint, apiKey, settingsStore.Get().Model)
	router := NewTranscriptionRouter(NewLocalAcceleratedTranscriber(), NewLocalPortableTranscriber(), remote)

	injector := NewTextInjector()
	settings := newDictationSettingsAdapter(settingsStore, catalog)
	controller := NewDictationController(audio, router, injector, eventLog, settings)

	return &App{
		startupCh:     make(chan struct{}),
		loginItems:    loginItems,
		settingsStore: settingsStore,
		modelCatalog:  catalog,
		credStore:     credStore,
		eventLog:      eventLog,
		injector:      injector,
		hotkeys:       NewHotkeyEngine(),
		controller:    controller,
	}
}

// startup is called by Wails when the runtime is ready.
func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()
	a.once.Do(func() { close(a.startupCh) })

	a.modelCatalog.SetContext(ctx)
	a.refreshRemoteCredential()

	// Mirror controller state transitions into the menu-bar icon and the
	// external overlay's event stream.
	a.controller.SetStateListener(func(s ControllerState, msg string) {
		a.onControllerStateChanged(s, msg)
	})

	// Launch systray icon (mic) in menu bar after Wails/Cocoa is running.
	// HideFromDock() is called inside onSystrayReady on the Cocoa thread.
	StartSystray(a)

	// Proactively trigger the macOS Accessibility permissions dialog if it
	// hasn't been granted yet, so the first dictation doesn't also have to
	// surface a cold permission prompt mid-paste.
	a.injector.PromptPermission()

	if err := a.startHotkeys(ctx); err != nil {
		if errors.Is(err, ErrHotkeyConflict) {
			a.eventLog.Warn("hotkey", "conflict", map[string]any{"shortcut": render(a.settingsStore.Get().Hotkey)})
			runtime.EventsEmit(ctx, "hotkey:conflict")
		} else if errors.Is(err, ErrPermissionMissing) {
			a.eventLog.Warn("hotkey", "permission_missing", nil)
			runtime.EventsEmit(ctx, "hotkey:permission-missing")
		} else {
			a.eventLog.Warn("hotkey", "register_failed", map[string]any{"error": err.Error()})
		}
	}

	a.settingsStore.OnChange(func(next Settings) {
		a.refreshRemoteCredential()
		if err := a.hotkeys.Register(next.Hotkey); err != nil {
			runtime.EventsEmit(ctx, "hotkey:conflict")
		}
	})
	if err := a.settingsStore.WatchFile(); err != nil {
		a.eventLog.Warn("settings", "watch_failed", map[string]any{"error": err.Error()})
	}
}

// startHotkeys registers the persisted shortcut and dispatches key-down /
// key-up according to the persisted hotkey mode: push-to-talk starts on
// key-down and stops (with the minimum-hold deferral) on key-up; toggle
// starts or stops on key-down alone.
func (a *App) startHotkeys(ctx context.Context) error {
	cfg := a.settingsStore.Get()
	return a.hotkeys.Start(ctx, cfg.Hotkey, a.onHotkeyDown, a.onHotkeyUp)
}

// onHotkeyDown and onHotkeyUp re-read HotkeyMode on every call (rather than
// closing over it at Start time) so a settings change takes effect on the
// next key press without re-registering the hotkey.
func (a *App) onHotkeyDown() {
	a.mu.RLock()
	ctx := a.ctx
	a.mu.RUnlock()

	mode := a.settingsStore.Get().HotkeyMode
	if mode == "toggle" {
		if a.controller.State() == StateRecording {
			a.controller.StopRecording()
			return
		}
		if a.controller.State() != StateIdle {
			return
		}
	}

	a.controller.PrimeContext(captureContextText())
	if err := a.controller.StartRecording(ctx); err != nil {
		if errors.Is(err, ErrMicPermissionDenied) {
			runtime.EventsEmit(ctx, "audio:permission-denied")
		} else {
			runtime.EventsEmit(ctx, "audio:error")
		}
	}
}

func (a *App) onHotkeyUp() {
	if a.settingsStore.Get().HotkeyMode == "toggle" {
		return // toggle mode ignores key-up entirely
	}
	a.controller.StopRecordingPushToTalk()
}

// onControllerStateChanged mirrors the Dictation Controller's state into
// the menu-bar indicator, the event log's session correlation, and the
// external overlay's event stream. msg carries the failure text for
// StateError and is empty otherwise.
func (a *App) onControllerStateChanged(s ControllerState, msg string) {
	a.mu.RLock()
	ctx := a.ctx
	a.mu.RUnlock()

	switch s {
	case StateRecording:
		a.eventLog.BeginDictationSession()
	case StateIdle:
		a.eventLog.EndDictationSession()
	case StateError:
		a.eventLog.Warn("dictation", "transcription_failed", map[string]any{"error": msg})
	}

	SetSysTrayState(s)
	if ctx != nil {
		if s == StateError {
			runtime.EventsEmit(ctx, "dictation:error", msg)
		}
		runtime.EventsEmit(ctx, "dictation:state", s.String())
	}
}

// refreshRemoteCredential checks that the remote API secret can be loaded
// and logs at debug level when it cannot. It does not change the remote
// transcriber: the Transcriber interface has no secret-rotation setter, so
// the transcriber keeps the key it received in NewApp and a newly saved
// credential takes effect at the next process start.
func (a *App) refreshRemoteCredential() {
	if _, err := a.credStore.Load(); err != nil {
		a.eventLog.Debug("credential", "load_skipped", map[string]any{"reason": err.Error()})
	}
}

// waitForStartup blocks until Wails has initialised (startup() has been called).
func (a *App) waitForStartup() context.Context {
	<-a.startupCh
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ctx
}

// ShowWindow shows the main settings window.
func (a *App) ShowWindow() {
	go func() {
		ctx := a.waitForStartup()
		runtime.WindowShow(ctx)
		a.mu.Lock()
		a.windowVisible = true
		a.mu.Unlock()
	}()
}

// ToggleWindow shows the window if hidden, or hides it if visible.
func (a *App) ToggleWindow() {
	go func() {
		ctx := a.waitForStartup()
		a.mu.Lock()
		if a.windowVisible {
			runtime.WindowHide(ctx)
			a.windowVisible = false
		} else {
			runtime.WindowShow(ctx)
			a.windowVisible = true
		}
		a.mu.Unlock()
	}()
}

// Quit exits the application, tearing down OS-registered resources while
// the host event loop is still alive.
func (a *App) Quit() {
	go func() {
		ctx := a.waitForStartup()
		a.hotkeys.Stop()
		a.eventLog.Close()
		a.settingsStore.Close()
		<-time.After(100 * time.Millisecond)
		runtime.Quit(ctx)
	}()
}

// GetSettings returns the current persisted user preferences.
func (a *App) GetSettings() Settings {
	return a.settingsStore.Get()
}

// SetSettings persists a full settings record; the store's change observer
// registered in startup() then re-registers the hotkey.
func (a *App) SetSettings(next Settings) error {
	return a.settingsStore.Set(next)
}

// ResetSettings restores factory defaults.
func (a *App) ResetSettings() error {
	return a.settingsStore.ResetToDefaults()
}

// GetModelStatuses returns the download status of each known model.
func (a *App) GetModelStatuses() map[string]string {
	return a.modelCatalog.Statuses()
}

// DownloadModel starts a background download of the named model. Progress
// is streamed via "model:download:progress", "model:download:done", and
// "model:download:error" Wails events.
func (a *App) DownloadModel(name string) error {
	return a.modelCatalog.Download(name)
}

// SaveRemoteCredential stores the remote transcription API secret in the OS
// keychain. The running remote transcriber keeps the key it was built with;
// the new secret is used from the next process start.
func (a *App) SaveRemoteCredential(secret string) error {
	if err := a.credStore.Save(secret); err != nil {
		return err
	}
	a.refreshRemoteCredential()
	return nil
}

// HasRemoteCredential reports whether a remote API secret is currently stored.
func (a *App) HasRemoteCredential() bool {
	return a.credStore.Has()
}

// DeleteRemoteCredential removes the stored remote API secret.
func (a *App) DeleteRemoteCredential() error {
	return a.credStore.Delete()
}

// GetHotkeyStatus returns the current hotkey registration status.
func (a *App) GetHotkeyStatus() string {
	if a.hotkeys.IsRegistered() {
		return "registered"
	}
	return "unregistered"
}

// GetHotkeyRendered returns the human-readable rendering of the current shortcut.
func (a *App) GetHotkeyRendered() string {
	return render(a.hotkeys.Shortcut())
}

// RetryLastTranscription re-dispatches the Retained Utterance after a
// recoverable transcription failure.
func (a *App) RetryLastTranscription() {
	a.controller.RetryLastTranscription()
}

// GetDictationState returns the controller's current state as a string,
// for a settings-UI poll fallback alongside the "dictation:state" event.
func (a *App) GetDictationState() string {
	return a.controller.State().String()
}

// GetLastError returns the message from the most recent StateError
// transition, for the settings UI to render alongside the error state.
func (a *App) GetLastError() string {
	return a.controller.LastError()
}

// OpenSystemSettings opens the macOS Privacy & Security → Microphone pane.
func (a *App) OpenSystemSettings() error {
	return exec.Command("open",
		"x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone",
	).Run()
}

// GetLaunchAtLogin reports whether the app is registered as a login item.
func (a *App) GetLaunchAtLogin() bool {
	if a.loginItems == nil {
		return false
	}
	return a.loginItems.IsEnabled()
}

// SetLaunchAtLogin enables or disables the launch-at-login login item and
// persists the preference.
func (a *App) SetLaunchAtLogin(enabled bool) error {
	if a.loginItems != nil {
		if enabled {
			execPath, err := os.Executable()
			if err != nil {
				return err
			}
			if err := a.loginItems.Enable(execPath); err != nil {
				return err
			}
		} else if err := a.loginItems.Disable(); err != nil {
			return err
		}
	}
	cfg := a.settingsStore.Get()
	cfg.LaunchAtLogin = enabled
	return a.settingsStore.Set(cfg)
}
