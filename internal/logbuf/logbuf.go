package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is a single log entry captured from slog. Component and Invocation
// are lifted out of the attrs so the ops API can filter on them.
type Entry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Component  string         `json:"component,omitempty"`
	Invocation string         `json:"invocation,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Since      time.Time
	MinLevel   slog.Level
	Limit      int // keep the newest Limit matches; <= 0 keeps all
	Component  string
	Invocation string
}

// Buffer is a thread-safe ring buffer for log entries.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int
}

// New creates a ring buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = 1
	}
	return &Buffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Write appends an entry, overwriting the oldest one when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	b.mu.Unlock()
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries matching f, oldest first.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []Entry

	start := 0
	if b.count == b.size {
		start = b.pos
	}

	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%b.size]
		if !f.matches(e) {
			continue
		}
		result = append(result, e)
	}

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[len(result)-f.Limit:]
	}
	return result
}

func (f Filter) matches(e Entry) bool {
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if ParseLevel(e.Level) < f.MinLevel {
		return false
	}
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.Invocation != "" && e.Invocation != f.Invocation {
		return false
	}
	return true
}

// ParseLevel converts a level name (any case) back to slog.Level.
// Unknown names map to INFO.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
