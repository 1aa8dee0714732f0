package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLog is a plain-text, timestamped log of a single run. It is what you
// read after the fact to see every scheduling decision in order.
type DebugLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewDebugLog opens (appending) the log at path, creating parent
// directories. An empty path yields a no-op log.
func NewDebugLog(path string) (*DebugLog, error) {
	if path == "" {
		return &DebugLog{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	d := &DebugLog{file: f}
	d.Log("=== taskgraph debug log started at %s ===", time.Now().Format(time.RFC3339))
	return d, nil
}

// DebugLogForRun places the log at <dir>/runs/<runID>.log. A directory that
// cannot be created results in a no-op log.
func DebugLogForRun(dir, runID string) *DebugLog {
	d, err := NewDebugLog(filepath.Join(dir, "runs", runID+".log"))
	if err != nil {
		return &DebugLog{}
	}
	return d
}

// NopDebugLog returns a log that discards everything.
func NopDebugLog() *DebugLog {
	return &DebugLog{}
}

// Log writes one timestamped line. Nil or no-op logs ignore the call.
func (d *DebugLog) Log(format string, args ...interface{}) {
	if d == nil || d.file == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintf(d.file, "[%s] %s\n", time.Now().Format("15:04:05.000"), fmt.Sprintf(format, args...))
}

// Close closes the underlying file.
func (d *DebugLog) Close() error {
	if d == nil || d.file == nil {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.file.Close()
	d.file = nil
	return err
}
