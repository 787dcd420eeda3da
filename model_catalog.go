package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// catalogLogger is the minimal interface localModelCatalog needs from the
// Event Log to report download progress and failures as structured events.
type catalogLogger interface {
	Info(category, event string, fields map[string]any)
	Warn(category, event string, fields map[string]any)
}

type noopCatalogLogger struct{}

func (noopCatalogLogger) Info(string, string, map[string]any) {}
func (noopCatalogLogger) Warn(string, string, map[string]any) {}

// catalogHTTPClient is shared across all downloads and forces HTTP/1.1.
// HuggingFace CDN sometimes sends HTTP/2 GOAWAY frames mid-transfer which
// crash Go's internal h2 read-loop goroutine; disabling H2 avoids this.
var catalogHTTPClient = &http.Client{
	Transport: &http.Transport{
		TLSClientConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
		TLSNextProto:       make(map[string]func(string, *tls.Conn) http.RoundTripper), // disable HTTP/2
		DisableCompression: false,
	},
}

// modelEntry describes one model offered by the catalog: its GGML file,
// whether it also needs a Core ML companion (which routes it to the
// accelerated engine), and where to fetch the GGML file from if it is missing.
type modelEntry struct {
	Name           string // e.g. "base-accelerated"
	FileName       string // e.g. "ggml-base.en.bin"
	RequireCoreML  bool   // true routes the router to ModelFamilyAccelerated
	SizeLabel      string // human-readable size displayed in the settings UI
	URL            string
	SHA256         string // hex-encoded expected SHA-256 of the downloaded file
}

// modelRegistry lists the supported models in display order. URLs point at
// the official Hugging Face whisper.cpp model repository; accelerated
// entries additionally require a sibling "<name>-encoder.mlmodelc" directory,
// checked by the Local-Accelerated transcriber itself.
var modelRegistry = []modelEntry{
	{Name: "tiny-portable", FileName: "ggml-tiny.en.bin", SizeLabel: "75 MB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin"},
	{Name: "base-accelerated", FileName: "ggml-base.en.bin", RequireCoreML: true, SizeLabel: "142 MB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin"},
	{Name: "small-portable", FileName: "ggml-small.en.bin", SizeLabel: "466 MB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin"},
	{Name: "medium-portable", FileName: "ggml-medium.en.bin", SizeLabel: "769 MB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.en.bin"},
	{Name: "large-v3-turbo-accelerated", FileName: "ggml-large-v3-turbo.bin", RequireCoreML: true, SizeLabel: "838 MB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin"},
	{Name: "large-v3-portable", FileName: "ggml-large-v3.bin", SizeLabel: "3.1 GB",
		URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin"},
}

func lookupModelEntry(name string) *modelEntry {
	for i := range modelRegistry {
		if modelRegistry[i].Name == name {
			return &modelRegistry[i]
		}
	}
	return nil
}

// Model status values surfaced to the settings UI.
const (
	ModelStatusDownloaded    = "downloaded"
	ModelStatusNotDownloaded = "not_downloaded"
	// In-progress: "downloading:42" (integer percent 0-100)
)

// ModelCatalog is the external collaborator the App Shell and the
// DictationSettings adapter consult to turn a configured model name into a
// concrete file path, and through which the settings UI manages local model
// files. Out of the core pipeline's scope per the model-catalog/downloader
// non-goal; kept as a boundary interface so the Transcription Router and
// Dictation Controller never depend on the download machinery directly.
type ModelCatalog interface {
	PathFor(name string) (path string, requireCoreML bool)
	Statuses() map[string]string
	Download(name string) error
	SetContext(ctx context.Context)
}

// localModelCatalog is the on-disk implementation: files live under
// ~/.vocalis/models, downloaded on demand from Hugging Face.
type localModelCatalog struct {
	mu         sync.Mutex
	modelsDir  string
	ctx        context.Context // set via SetContext after Wails starts
	inProgress map[string]bool // name → currently downloading
	logger     catalogLogger
}

// NewLocalModelCatalog creates a ModelCatalog pointing at the standard
// per-user models directory, logging download progress and failures through
// logger (pass the app's EventLog; nil is safe in tests).
func NewLocalModelCatalog(logger catalogLogger) ModelCatalog {
	home, _ := os.UserHomeDir()
	if logger == nil {
		logger = noopCatalogLogger{}
	}
	return &localModelCatalog{
		modelsDir:  filepath.Join(home, ".vocalis", "models"),
		inProgress: make(map[string]bool),
		logger:     logger,
	}
}

// SetContext stores the Wails runtime context needed for EventsEmit. Called
// from the App Shell's startup once Wails is ready.
func (c *localModelCatalog) SetContext(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
}

// PathFor returns the expected file path for name and whether that model
// requires a CoreML companion file, used by the DictationSettings adapter to
// build an ActiveModel.
func (c *localModelCatalog) PathFor(name string) (string, bool) {
	entry := lookupModelEntry(name)
	if entry == nil {
		return "", false
	}
	return filepath.Join(c.modelsDir, entry.FileName), entry.RequireCoreML
}

// Statuses returns a map of model name → status string: one of
// ModelStatusDownloaded, ModelStatusNotDownloaded, or "downloading:N" for an
// in-progress download.
func (c *localModelCatalog) Statuses() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make(map[string]string, len(modelRegistry))
	for _, m := range modelRegistry {
		if c.inProgress[m.Name] {
			result[m.Name] = "downloading:0" // progress updated via events
			continue
		}
		path := filepath.Join(c.modelsDir, m.FileName)
		if _, err := os.Stat(path); err == nil {
			result[m.Name] = ModelStatusDownloaded
		} else {
			result[m.Name] = ModelStatusNotDownloaded
		}
	}
	return result
}

// Download starts a background download of the named model. Safe to call
// from the UI thread; the download runs in a goroutine. Progress is emitted
// as Wails events:
//   - "model:download:progress" {name string, pct int}
//   - "model:download:done"     {name string}
//   - "model:download:error"    {name string, err string}
func (c *localModelCatalog) Download(name string) error {
	entry := lookupModelEntry(name)
	if entry == nil {
		return fmt.Errorf("model_catalog: unknown model %q", name)
	}

	c.mu.Lock()
	if c.inProgress[name] {
		c.mu.Unlock()
		return fmt.Errorf("model_catalog: %q download already in progress", name)
	}
	c.inProgress[name] = true
	ctx := c.ctx
	c.mu.Unlock()

	go c.runDownload(ctx, *entry)
	return nil
}

// runDownload performs the actual HTTP download, a SHA256 check when the
// entry carries an expected hash (no registry entry currently does), and
// atomic rename.
func (c *localModelCatalog) runDownload(ctx context.Context, entry modelEntry) {
	name := entry.Name
	defer func() {
		// Recover from any unexpected panics so the app never crashes from a
		// failed download (e.g. HTTP/2 transport bugs, nil dereferences).
		if r := recover(); r != nil {
			c.logger.Warn("model_catalog", "download_panic_recovered", map[string]any{"name": name, "reason": fmt.Sprint(r)})
			if ctx != nil {
				runtime.EventsEmit(ctx, "model:download:error",
					map[string]string{"name": name, "err": fmt.Sprintf("unexpected error: %v", r)})
			}
		}
		c.mu.Lock()
		delete(c.inProgress, name)
		c.mu.Unlock()
	}()

	emit := func(event string, data ...interface{}) {
		if ctx != nil {
			runtime.EventsEmit(ctx, event, data...)
		}
	}

	c.logger.Info("model_catalog", "download_started", map[string]any{"name": entry.FileName, "url": entry.URL})

	if err := os.MkdirAll(c.modelsDir, 0o755); err != nil {
		c.logger.Warn("model_catalog", "mkdir_failed", map[string]any{"error": err.Error()})
		emit("model:download:error", map[string]string{"name": name, "err": err.Error()})
		return
	}

	// Download to a temp file first.
	tmpPath := filepath.Join(c.modelsDir, entry.FileName+".download")
	f, err := os.Create(tmpPath)
	if err != nil {
		c.logger.Warn("model_catalog", "create_temp_file_failed", map[string]any{"error": err.Error()})
		emit("model:download:error", map[string]string{"name": name, "err": err.Error()})
		return
	}
	defer os.Remove(tmpPath) // clean up temp file on any error path

	resp, err := catalogHTTPClient.Get(entry.URL) //nolint:noctx — intentional long-running download
	if err != nil {
		f.Close()
		c.logger.Warn("model_catalog", "http_get_failed", map[string]any{"error": err.Error()})
		emit("model:download:error", map[string]string{"name": name, "err": err.Error()})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.Close()
		errMsg := fmt.Sprintf("server returned %d", resp.StatusCode)
		c.logger.Warn("model_catalog", "download_failed", map[string]any{"name": entry.FileName, "error": errMsg})
		emit("model:download:error", map[string]string{"name": name, "err": errMsg})
		return
	}

	// Stream body, tracking progress and computing SHA256 simultaneously.
	total := resp.ContentLength // may be -1 if unknown
	hasher := sha256.New()
	var downloaded int64
	lastPct := -1

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				c.logger.Warn("model_catalog", "write_failed", map[string]any{"error": werr.Error()})
				emit("model:download:error", map[string]string{"name": name, "err": werr.Error()})
				return
			}
			hasher.Write(buf[:n])
			downloaded += int64(n)

			if total > 0 {
				pct := int(downloaded * 100 / total)
				if pct != lastPct {
					lastPct = pct
					emit("model:download:progress", map[string]interface{}{"name": name, "pct": pct})
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			f.Close()
			c.logger.Warn("model_catalog", "read_failed", map[string]any{"error": readErr.Error()})
			emit("model:download:error", map[string]string{"name": name, "err": readErr.Error()})
			return
		}
	}
	f.Close()

	// Verify SHA256.
	if entry.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != entry.SHA256 {
			errMsg := fmt.Sprintf("SHA256 mismatch: got %s want %s", got[:8]+"…", entry.SHA256[:8]+"…")
			c.logger.Warn("model_catalog", "checksum_mismatch", map[string]any{"name": entry.FileName, "error": errMsg})
			emit("model:download:error", map[string]string{"name": name, "err": errMsg})
			return
		}
		c.logger.Info("model_catalog", "checksum_verified", map[string]any{"name": entry.FileName})
	}

	// Atomic rename: temp → final destination.
	finalPath := filepath.Join(c.modelsDir, entry.FileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		c.logger.Warn("model_catalog", "rename_failed", map[string]any{"error": err.Error()})
		emit("model:download:error", map[string]string{"name": name, "err": err.Error()})
		return
	}

	c.logger.Info("model_catalog", "download_complete", map[string]any{"name": entry.FileName})
	emit("model:download:done", map[string]string{"name": name})
}
