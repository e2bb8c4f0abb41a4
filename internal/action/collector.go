package action

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one debug record.
type Entry struct {
	At      time.Time      `json:"at"`
	Source  string         `json:"source"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Collector accumulates debug entries for a single dispatch, including any
// reboots or restarts it goes through.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{now: time.Now}
}

// Add records an entry. args follow slog: alternating key/value pairs
// mixed with slog.Attr values. A trailing key without a value is dropped,
// as is anything that is neither a key nor an Attr.
func (c *Collector) Add(source, msg string, args ...any) {
	var attrs map[string]any
	set := func(key string, value any) {
		if attrs == nil {
			attrs = make(map[string]any, len(args))
		}
		attrs[key] = value
	}
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			if a.Key != "" {
				set(a.Key, a.Value.Resolve().Any())
			}
		case string:
			if i+1 < len(args) {
				set(a, args[i+1])
				i++
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{At: c.now(), Source: source, Message: msg, Attrs: attrs})
}

// Entries returns a copy of the recorded entries.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of recorded entries.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
