package webui

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/ring"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer is a thread-safe ring buffer of log lines. It implements
// io.Writer so it can sit behind zerolog next to stdout.
type LogBuffer struct {
	mu      sync.RWMutex
	entries *ring.Buffer[LogEntry]
}

// NewLogBuffer creates a new log buffer with the specified capacity
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{entries: ring.New[LogEntry](size)}
}

// Write implements io.Writer for capturing log output
func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	entry := parseEntry(strings.TrimRight(string(p), "\n"))

	lb.mu.Lock()
	lb.entries.Append(entry)
	lb.mu.Unlock()

	return len(p), nil
}

// GetEntries returns all log entries in chronological order
func (lb *LogBuffer) GetEntries() []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.entries.Items()
}

// GetRecentEntries returns the most recent n entries
func (lb *LogBuffer) GetRecentEntries(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.entries.Last(n)
}

// Filter returns the most recent n entries at or above level
func (lb *LogBuffer) Filter(level string, n int) []LogEntry {
	floor := levelRank(level)
	all := lb.GetEntries()
	out := make([]LogEntry, 0, len(all))
	for _, e := range all {
		if levelRank(e.Level) >= floor {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Clear clears all log entries
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries.Clear()
}

// parseEntry decodes a zerolog JSON line; anything else is kept as raw text
func parseEntry(raw string) LogEntry {
	entry := LogEntry{Timestamp: time.Now(), Level: "info", Message: raw, Raw: raw}

	var fields struct {
		Time      any    `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return entry
	}

	if fields.Level != "" {
		entry.Level = fields.Level
	}
	if fields.Message != "" {
		entry.Message = fields.Message
	}
	entry.Component = fields.Component
	switch ts := fields.Time.(type) {
	case float64:
		entry.Timestamp = time.Unix(int64(ts), 0)
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = parsed
		}
	}
	return entry
}

func levelRank(level string) int {
	switch level {
	case "trace":
		return -1
	case "debug":
		return 0
	case "", "info":
		return 1
	case "warn":
		return 2
	case "error":
		return 3
	case "fatal":
		return 4
	case "panic":
		return 5
	default:
		return 1
	}
}
