package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
)

// settingsLogger is the minimal interface SettingsStore needs from the
// Event Log, so read/parse failures are captured as structured events
// instead of a bare stdlib log line.
type settingsLogger interface {
	Warn(category, event string, fields map[string]any)
}

type noopSettingsLogger struct{}

func (noopSettingsLogger) Warn(string, string, map[string]any) {}

// Settings holds the full set of persistent user preferences.
type Settings struct {
	Language         string   `json:"language"`
	Backend          string   `json:"backend"` // "local" | "remote"
	Model            string   `json:"model"`
	HotkeyMode       string   `json:"hotkey_mode"` // "push-to-talk" | "toggle"
	Hotkey           Shortcut `json:"hotkey"`
	ShowOverlay      bool     `json:"show_overlay"`
	AutoPaste        bool     `json:"auto_paste"`
	AutoSelectModel  bool     `json:"auto_select_model"`
	LaunchAtLogin    bool     `json:"launch_at_login"`
}

func defaultSettings() Settings {
	return Settings{
		Language:        "en",
		Backend:         "local",
		Model:           "base-accelerated",
		HotkeyMode:      "push-to-talk",
		Hotkey:          Shortcut{KeyCode: 49, Modifiers: ModControl | ModShift}, // Space
		ShowOverlay:     true,
		AutoPaste:       true,
		AutoSelectModel: true,
		LaunchAtLogin:   false,
	}
}

// activeModel implements DictationSettings.ActiveModel by mapping the
// persisted model/backend choice onto a router dispatch target, resolving
// the model name to a file path (and its engine family) through catalog.
func (s Settings) activeModel(catalog ModelCatalog) ActiveModel {
	if s.Backend == "remote" {
		return ActiveModel{Family: ModelFamilyRemote}
	}
	path, requireCoreML := catalog.PathFor(s.Model)
	family := ModelFamilyPortable
	if requireCoreML && s.AutoSelectModel {
		family = ModelFamilyAccelerated
	}
	return ActiveModel{Family: family, Path: path}
}

// SettingsStore is the sole writer of the persisted Settings record. It
// seeds missing keys with defaults on load, writes atomically via a
// temp-file rename, and notifies observers (debounced) on external file
// changes, e.g. from a settings UI running in a separate process.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	current Settings
	logger  settingsLogger

	watcher  *fsnotify.Watcher
	onChange func(Settings)
	debounced func(func())
}

// NewSettingsStore creates a SettingsStore at the standard path, logging
// read/parse failures through logger (pass the app's EventLog).
func NewSettingsStore(logger settingsLogger) *SettingsStore {
	home, _ := os.UserHomeDir()
	return newSettingsStoreAt(filepath.Join(home, ".vocalis", "settings.json"), logger)
}

// newSettingsStoreAt creates a SettingsStore at a custom path (tests use
// this to avoid touching the real home directory).
func newSettingsStoreAt(path string, logger settingsLogger) *SettingsStore {
	if logger == nil {
		logger = noopSettingsLogger{}
	}
	s := &SettingsStore{path: path, debounced: debounce.New(300 * time.Millisecond), logger: logger}
	s.current = s.load()
	return s
}

// load reads settings from disk, seeding missing/zero fields with
// defaults. Returns defaults outright if the file doesn't exist.
func (s *SettingsStore) load() Settings {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return defaultSettings()
	}
	if err != nil {
		s.logger.Warn("settings", "read_error", map[string]any{"error": err.Error()})
		return defaultSettings()
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("settings", "parse_error", map[string]any{"error": err.Error()})
		defaults := defaultSettings()
		_ = s.persist(defaults)
		return defaults
	}
	return seedDefaults(loaded)
}

func seedDefaults(s Settings) Settings {
	d := defaultSettings()
	if s.Language == "" {
		s.Language = d.Language
	}
	if s.Backend == "" {
		s.Backend = d.Backend
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.HotkeyMode == "" {
		s.HotkeyMode = d.HotkeyMode
	}
	if s.Hotkey.KeyCode == 0 && s.Hotkey.Modifiers == 0 {
		s.Hotkey = d.Hotkey
	}
	return s
}

// Get returns a snapshot of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set persists a full settings record, notifying any registered observer.
func (s *SettingsStore) Set(next Settings) error {
	if err := s.persist(next); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = next
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(next)
	}
	return nil
}

// ResetToDefaults restores factory defaults and persists them.
func (s *SettingsStore) ResetToDefaults() error {
	return s.Set(defaultSettings())
}

func (s *SettingsStore) persist(cfg Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// OnChange registers the single observer invoked whenever settings change,
// whether via Set or an externally-detected file modification.
func (s *SettingsStore) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// WatchFile starts watching the settings file's directory for external
// modifications (e.g. a settings UI process writing directly), reloading
// and notifying observers after a debounce window. Call Close to stop.
func (s *SettingsStore) WatchFile() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close() //nolint:errcheck
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close() //nolint:errcheck
		return err
	}
	s.watcher = watcher

	fileName := filepath.Base(s.path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != fileName {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				s.debounced(s.reload)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func (s *SettingsStore) reload() {
	next := s.load()
	s.mu.Lock()
	s.current = next
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange(next)
	}
}

// Close stops the file watcher, if running.
func (s *SettingsStore) Close() {
	if s.watcher != nil {
		s.watcher.Close() //nolint:errcheck
	}
}
