// Package logtest provides a Logger that records entries for assertions.
package logtest

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/triox/internal/logging"
)

// Entry is one recorded log call. Attrs holds the child-logger fields
// followed by the call's own key/value pairs.
type Entry struct {
	Level string
	Msg   string
	Attrs map[string]any
}

type store struct {
	mu      sync.Mutex
	entries []Entry
}

// Recorder is a logging.Logger that keeps every entry in memory.
type Recorder struct {
	s    *store
	with []any
}

var _ logging.Logger = (*Recorder)(nil)

func New() *Recorder {
	return &Recorder{s: &store{}}
}

func (r *Recorder) record(level, msg string, args []any) {
	attrs := map[string]any{}
	kv := append(append([]any{}, r.with...), args...)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			attrs[k] = kv[i+1]
		}
	}
	r.s.mu.Lock()
	r.s.entries = append(r.s.entries, Entry{Level: level, Msg: msg, Attrs: attrs})
	r.s.mu.Unlock()
}

func (r *Recorder) Debug(_ context.Context, msg string, args ...any) { r.record("debug", msg, args) }
func (r *Recorder) Info(_ context.Context, msg string, args ...any)  { r.record("info", msg, args) }
func (r *Recorder) Warn(_ context.Context, msg string, args ...any)  { r.record("warn", msg, args) }
func (r *Recorder) Error(_ context.Context, msg string, args ...any) { r.record("error", msg, args) }

func (r *Recorder) With(args ...any) logging.Logger {
	return &Recorder{s: r.s, with: append(append([]any{}, r.with...), args...)}
}

// Entries returns a snapshot of everything logged through r or its children.
func (r *Recorder) Entries() []Entry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]Entry(nil), r.s.entries...)
}

// ByLevel returns the entries logged at level.
func (r *Recorder) ByLevel(level string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
