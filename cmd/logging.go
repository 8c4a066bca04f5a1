// file: cmd/logging.go
// version: 1.0.0
// guid: 2f6c1e84-93ab-4d57-b0e2-5a8d7c4f1e39

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

var linePrefixes = []struct {
	tag  []byte
	rank int
}{
	{[]byte("[DEBUG]"), 0},
	{[]byte("[INFO]"), 1},
	{[]byte("[WARN]"), 2},
	{[]byte("[ERROR]"), 3},
}

// levelWriter drops log lines tagged below the configured level. Untagged
// lines always pass.
type levelWriter struct {
	mu  sync.Mutex
	out io.Writer
	min int
}

func (w *levelWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, lp := range linePrefixes {
		if bytes.Contains(p, lp.tag) {
			if lp.rank < w.min {
				return len(p), nil
			}
			break
		}
	}
	return w.out.Write(p)
}

var logOutput = &levelWriter{out: os.Stderr, min: 1}

func init() {
	log.SetOutput(logOutput)
}

// setLogLevel applies a level name; unknown names fall back to info.
func setLogLevel(level string) {
	rank, ok := levelRank[level]
	if !ok {
		rank = levelRank["info"]
	}
	logOutput.mu.Lock()
	logOutput.min = rank
	logOutput.mu.Unlock()
}

// setupFileLogging tees the log into <dataDir>/logs/filesync.log. The caller
// closes the returned file.
func setupFileLogging(dataDir string) (*os.File, error) {
	logDir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "filesync.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logOutput.mu.Lock()
	logOutput.out = io.MultiWriter(os.Stderr, f)
	logOutput.mu.Unlock()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return f, nil
}
