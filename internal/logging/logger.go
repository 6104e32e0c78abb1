package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TaskLog represents a single task-execution log entry: one per executor
// per task, written as the task completes.
type TaskLog struct {
	Timestamp  time.Time `json:"timestamp"`
	TaskID     string    `json:"task_id"`
	ExecutorID string    `json:"executor_id"`
	Command    string    `json:"command"`
	DurationMs int64     `json:"duration_ms"`
	ExitCode   int32     `json:"exit_code"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Truncated  bool      `json:"truncated,omitempty"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
}

// Logger handles task-invocation logging, independent from the operational
// logger in slog.go.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default task logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput directs JSON log entries to path, in addition to any console
// output.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables or disables the human-readable console line.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a task log entry.
func (l *Logger) Log(entry *TaskLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !entry.Success {
			status = "fail"
		}
		trunc := ""
		if entry.Truncated {
			trunc = " [truncated]"
		}
		fmt.Printf("[task] %s %s on %s %dms exit=%d%s\n",
			status, entry.TaskID, entry.ExecutorID, entry.DurationMs, entry.ExitCode, trunc)
		if entry.Error != "" {
			fmt.Printf("[task]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file, if any.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
