package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

const (
	// CrashLogDir is the directory for crash logs relative to the state
	// root.
	CrashLogDir = "crash_logs"

	// MaxCrashLogs is the maximum number of crash logs to keep.
	MaxCrashLogs = 10
)

// CrashContext stores context for crash logging.
type CrashContext struct {
	mu       sync.RWMutex
	session  string
	pending  int
	version  string
	basePath string
}

var globalContext = &CrashContext{}

// SetBasePath sets the base path for crash logs (typically the .trackwing
// directory).
func SetBasePath(path string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.basePath = path
}

// SetVersion sets the application version for crash logs.
func SetVersion(version string) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.version = version
}

// SetSession records which editing session is active and how many
// operations it has queued, so a crash report shows what was at risk.
func SetSession(name string, pendingOps int) {
	globalContext.mu.Lock()
	defer globalContext.mu.Unlock()
	globalContext.session = name
	globalContext.pending = pendingOps
}

// CrashLog represents one crash report.
type CrashLog struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
	Session    string    `json:"session,omitempty"`
	PendingOps int       `json:"pending_ops"`
	PanicValue string    `json:"panic_value"`
	StackTrace string    `json:"stack_trace"`
	GoVersion  string    `json:"go_version"`
	OS         string    `json:"os"`
	Arch       string    `json:"arch"`
}

// Recover writes a crash log if the calling goroutine is panicking and
// re-panics afterwards. Use as `defer logger.Recover()` at boundaries
// where in-flight session state would otherwise vanish silently.
func Recover() {
	r := recover()
	if r == nil {
		return
	}
	_ = WriteCrashLog(r)
	panic(r)
}

// WriteCrashLog persists a crash report and prunes old ones.
func WriteCrashLog(panicValue any) error {
	globalContext.mu.RLock()
	entry := CrashLog{
		Timestamp:  time.Now().UTC(),
		Version:    globalContext.version,
		Session:    globalContext.session,
		PendingOps: globalContext.pending,
		PanicValue: fmt.Sprint(panicValue),
		StackTrace: string(debug.Stack()),
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
	basePath := globalContext.basePath
	globalContext.mu.RUnlock()

	if basePath == "" {
		basePath = "."
	}
	dir := filepath.Join(basePath, CrashLogDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create crash log directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal crash log: %w", err)
	}
	name := fmt.Sprintf("crash_%s.json", entry.Timestamp.Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write crash log: %w", err)
	}

	pruneOldLogs(dir)
	return nil
}

// pruneOldLogs keeps the newest MaxCrashLogs crash reports.
func pruneOldLogs(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	if len(names) <= MaxCrashLogs {
		return
	}
	sort.Strings(names) // timestamped names sort chronologically
	for _, name := range names[:len(names)-MaxCrashLogs] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
