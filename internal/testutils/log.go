package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// LogRecorder is a slog.Handler keeping the records it handles.
type LogRecorder struct {
	minLevel slog.Level
	attrs    []slog.Attr
	store    *recordStore
}

type recordStore struct {
	mu      sync.Mutex
	records []slog.Record
}

// NewLogRecorder returns a handler recording the records at minLevel and above.
func NewLogRecorder(minLevel slog.Level) *LogRecorder {
	return &LogRecorder{minLevel: minLevel, store: &recordStore{}}
}

// Logger returns a logger writing to r.
func (r *LogRecorder) Logger() *slog.Logger {
	return slog.New(r)
}

// Records returns a copy of the recorded records, in order.
func (r *LogRecorder) Records() []slog.Record {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]slog.Record(nil), r.store.records...)
}

// AssertLevels asserts how many records were logged at each level. The records are printed on mismatch.
func (r *LogRecorder) AssertLevels(t *testing.T, want map[slog.Level]uint) bool {
	t.Helper()

	records := r.Records()
	got := make(map[slog.Level]uint)
	for _, rec := range records {
		got[rec.Level]++
	}
	if len(want) == 0 {
		want = map[slog.Level]uint{}
	}
	if assert.Equal(t, want, got, "Logged levels should match") {
		return true
	}

	for _, rec := range records {
		var attrs []any
		rec.Attrs(func(a slog.Attr) bool {
			attrs = append(attrs, a.String())
			return true
		})
		t.Logf("%v %s %v", rec.Level, rec.Message, attrs)
	}
	return false
}

// Enabled implements slog.Handler.
func (r *LogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= r.minLevel
}

// Handle implements slog.Handler.
func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.records = append(r.store.records, rec)
	return nil
}

// WithAttrs implements slog.Handler. The returned handler records into the same store.
func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LogRecorder{
		minLevel: r.minLevel,
		attrs:    append(append([]slog.Attr(nil), r.attrs...), attrs...),
		store:    r.store,
	}
}

// WithGroup implements slog.Handler. Groups are flattened.
func (r *LogRecorder) WithGroup(_ string) slog.Handler {
	return r
}
