package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/lewisedginton/npc_registry/internal/document_store"
	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.DebugLevel, Output: io.Discard})
}

// memoryDocs is an in-memory document_store.Store with failure injection.
type memoryDocs struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    []string
	sets    int
	failSet error
	failGet error
}

func newMemoryDocs() *memoryDocs {
	return &memoryDocs{data: map[string][]byte{}}
}

func docKey(key string, scope document_store.Scope) string {
	return scope.String() + "|" + key
}

func (m *memoryDocs) Get(_ context.Context, key string, scope document_store.Scope) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, docKey(key, scope))
	if m.failGet != nil {
		return nil, false, m.failGet
	}
	d, ok := m.data[docKey(key, scope)]
	return d, ok, nil
}

func (m *memoryDocs) Set(_ context.Context, key string, scope document_store.Scope, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.sets++
	m.data[docKey(key, scope)] = append([]byte(nil), data...)
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Emit(e notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []notify.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]notify.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// clock advances one second on every call.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	store  *Store
	docs   *memoryDocs
	events *eventLog
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:   newMemoryDocs(),
		events: &eventLog{},
		clock:  &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	f.store = New(Config{
		Documents: f.docs,
		Events:    f.events,
		Logger:    newTestLogger(),
		LegacyKey: "npc_registry",
		Now:       f.clock.Now,
	})
	return f
}

func (f *fixture) bind(t *testing.T, session string) {
	t.Helper()
	require.NoError(t, f.store.BindSession(context.Background(), document_store.ScopeFor(session)))
}

var errDiskFull = errors.New("disk full")
