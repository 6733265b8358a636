// Package session_manager tracks the conversations the registry has seen and
// supplies the active session id to callers that were not given one.
package session_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// Manager is the session-context collaborator
type Manager interface {
	// Touch records activity on a session, registering it on first use, and
	// makes it the active session
	Touch(ctx context.Context, sessionID, source string) (SessionInfo, error)

	// ActiveSession returns the session id carried by ctx, falling back to
	// the most recently touched session. False means none is known.
	ActiveSession(ctx context.Context) (string, bool)

	// Get returns a single session
	Get(ctx context.Context, sessionID string) (SessionInfo, bool)

	// ListSessions returns every known session, most recently active first
	ListSessions(ctx context.Context) []SessionInfo
}

type sessionManager struct {
	config   Config
	mutex    sync.RWMutex
	sessions map[string]SessionInfo
	active   string
}

// New creates a session manager and loads existing metadata
func New(config Config) (Manager, error) {
	if config.MetadataFile == "" {
		return nil, fmt.Errorf("metadata file path is required")
	}
	if config.FileProvider == nil {
		return nil, fmt.Errorf("file provider is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	sm := &sessionManager{
		config:   config,
		sessions: make(map[string]SessionInfo),
	}
	if err := sm.loadMetadata(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return sm, nil
}

func (sm *sessionManager) Touch(ctx context.Context, sessionID, source string) (SessionInfo, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionInfo{}, fmt.Errorf("session id is required")
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	now := sm.config.Now()
	info, ok := sm.sessions[sessionID]
	if !ok {
		info = SessionInfo{SessionID: sessionID, Source: source, CreatedAt: now}
		sm.config.Logger.Info("Registered new session",
			logger.SessionField(sessionID), logger.StringField("source", source))
	}
	info.Turns++
	info.LastActive = now
	sm.sessions[sessionID] = info
	sm.active = sessionID

	// the in-memory index stays authoritative when the write fails
	if err := sm.saveMetadata(ctx); err != nil {
		sm.config.Logger.Error("Failed to save session metadata",
			logger.SessionField(sessionID), logger.ErrorField(err))
	}
	return info, nil
}

func (sm *sessionManager) ActiveSession(ctx context.Context) (string, bool) {
	if id, ok := SessionFromContext(ctx); ok {
		return id, true
	}
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.active, sm.active != ""
}

func (sm *sessionManager) Get(_ context.Context, sessionID string) (SessionInfo, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	info, ok := sm.sessions[sessionID]
	return info, ok
}

func (sm *sessionManager) ListSessions(_ context.Context) []SessionInfo {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

type sessionKey struct{}

// WithSession attaches an explicit session id to ctx.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session id attached by WithSession.
func SessionFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", false
	}
	return id, true
}
