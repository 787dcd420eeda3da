package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsStoreDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	s := newSettingsStoreAt(filepath.Join(dir, "settings.json"), nil)

	got := s.Get()
	want := defaultSettings()
	if got != want {
		t.Errorf("Get() = %+v; want defaults %+v", got, want)
	}
}

func TestSettingsStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := newSettingsStoreAt(path, nil)

	next := s.Get()
	next.Language = "fr"
	next.AutoPaste = false
	if err := s.Set(next); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloaded := newSettingsStoreAt(path, nil)
	got := reloaded.Get()
	if got.Language != "fr" || got.AutoPaste != false {
		t.Errorf("reloaded settings = %+v; want language=fr auto_paste=false", got)
	}
}

func TestSettingsStoreSeedsPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"language": "de"}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := newSettingsStoreAt(path, nil)
	got := s.Get()
	if got.Language != "de" {
		t.Errorf("Language = %q; want %q", got.Language, "de")
	}
	if got.HotkeyMode != defaultSettings().HotkeyMode {
		t.Errorf("HotkeyMode = %q; want seeded default %q", got.HotkeyMode, defaultSettings().HotkeyMode)
	}
}

func TestSettingsStoreResetToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := newSettingsStoreAt(path, nil)

	next := s.Get()
	next.Language = "ja"
	s.Set(next) //nolint:errcheck

	if err := s.ResetToDefaults(); err != nil {
		t.Fatalf("ResetToDefaults: %v", err)
	}
	if s.Get() != defaultSettings() {
		t.Errorf("Get() after reset = %+v; want defaults", s.Get())
	}
}

func TestSettingsStoreOnChangeNotifiesOnSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := newSettingsStoreAt(path, nil)

	notified := make(chan Settings, 1)
	s.OnChange(func(next Settings) { notified <- next })

	next := s.Get()
	next.Language = "es"
	s.Set(next) //nolint:errcheck

	select {
	case got := <-notified:
		if got.Language != "es" {
			t.Errorf("notified Language = %q; want %q", got.Language, "es")
		}
	case <-time.After(time.Second):
		t.Fatal("OnChange callback not invoked")
	}
}

type fakeModelCatalog struct {
	path          string
	requireCoreML bool
}

func (f *fakeModelCatalog) PathFor(string) (string, bool) { return f.path, f.requireCoreML }
func (f *fakeModelCatalog) Statuses() map[string]string   { return map[string]string{} }
func (f *fakeModelCatalog) Download(string) error          { return nil }
func (f *fakeModelCatalog) SetContext(context.Context)     {}

func TestSettingsActiveModelRouting(t *testing.T) {
	coreMLCatalog := &fakeModelCatalog{path: "/m.bin", requireCoreML: true}
	local := Settings{Backend: "local", AutoSelectModel: true}
	if got := local.activeModel(coreMLCatalog); got.Family != ModelFamilyAccelerated {
		t.Errorf("local+auto_select family = %v; want Accelerated", got.Family)
	}

	portable := Settings{Backend: "local", AutoSelectModel: false}
	if got := portable.activeModel(coreMLCatalog); got.Family != ModelFamilyPortable {
		t.Errorf("local without auto_select family = %v; want Portable", got.Family)
	}

	ggmlOnlyCatalog := &fakeModelCatalog{path: "/m.bin", requireCoreML: false}
	ggmlOnly := Settings{Backend: "local", AutoSelectModel: true}
	if got := ggmlOnly.activeModel(ggmlOnlyCatalog); got.Family != ModelFamilyPortable {
		t.Errorf("local model without a CoreML companion family = %v; want Portable", got.Family)
	}

	remote := Settings{Backend: "remote"}
	if got := remote.activeModel(coreMLCatalog); got.Family != ModelFamilyRemote {
		t.Errorf("remote family = %v; want Remote", got.Family)
	}
}
