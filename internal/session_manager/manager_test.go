package session_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metadataFile = "meta/sessions.json"

func testLogger() logger.Logger {
	return logger.NewLogger(logger.Config{Level: logger.InfoLevel, Format: "text", Output: io.Discard})
}

type tick struct{ t time.Time }

func (c *tick) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func setupTestManager(t *testing.T) (Manager, storage_manager.FileProvider) {
	t.Helper()
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	clock := &tick{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	mgr, err := New(Config{
		MetadataFile: metadataFile,
		FileProvider: provider,
		Logger:       testLogger(),
		Now:          clock.now,
	})
	require.NoError(t, err)
	return mgr, provider
}

func TestNew(t *testing.T) {
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "valid config",
			config: Config{MetadataFile: metadataFile, FileProvider: provider, Logger: testLogger()},
		},
		{
			name:        "missing metadata file",
			config:      Config{FileProvider: provider, Logger: testLogger()},
			expectError: true,
		},
		{
			name:        "missing file provider",
			config:      Config{MetadataFile: metadataFile, Logger: testLogger()},
			expectError: true,
		},
		{
			name:        "missing logger",
			config:      Config{MetadataFile: metadataFile, FileProvider: provider},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRejectsCorruptMetadata(t *testing.T) {
	provider := storage_manager.NewLocalFileProvider(t.TempDir())
	require.NoError(t, provider.Write(context.Background(), metadataFile, []byte("{oops")))

	_, err := New(Config{MetadataFile: metadataFile, FileProvider: provider, Logger: testLogger()})
	assert.Error(t, err)
}

func TestTouch(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	first, err := mgr.Touch(ctx, "chat-1", "http")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Turns)
	assert.Equal(t, first.CreatedAt, first.LastActive)

	second, err := mgr.Touch(ctx, "chat-1", "cli")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Turns)
	assert.Equal(t, "http", second.Source)
	assert.True(t, second.LastActive.After(first.LastActive))
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	_, err = mgr.Touch(ctx, "  ", "http")
	assert.Error(t, err)
}

func TestActiveSession(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	_, ok := mgr.ActiveSession(ctx)
	assert.False(t, ok)

	_, err := mgr.Touch(ctx, "a", "http")
	require.NoError(t, err)
	_, err = mgr.Touch(ctx, "b", "http")
	require.NoError(t, err)

	id, ok := mgr.ActiveSession(ctx)
	assert.True(t, ok)
	assert.Equal(t, "b", id)

	id, ok = mgr.ActiveSession(WithSession(ctx, "explicit"))
	assert.True(t, ok)
	assert.Equal(t, "explicit", id)

	id, _ = mgr.ActiveSession(WithSession(ctx, " "))
	assert.Equal(t, "b", id)
}

func TestListSessions(t *testing.T) {
	mgr, _ := setupTestManager(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "a"} {
		_, err := mgr.Touch(ctx, id, "cli")
		require.NoError(t, err)
	}

	list := mgr.ListSessions(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].SessionID)
	assert.Equal(t, "c", list[1].SessionID)
	assert.Equal(t, "b", list[2].SessionID)

	info, ok := mgr.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 2, info.Turns)
	_, ok = mgr.Get(ctx, "zzz")
	assert.False(t, ok)
}

func TestMetadataSurvivesRestart(t *testing.T) {
	mgr, provider := setupTestManager(t)
	ctx := context.Background()
	_, err := mgr.Touch(ctx, "a", "http")
	require.NoError(t, err)
	_, err = mgr.Touch(ctx, "b", "cli")
	require.NoError(t, err)

	reopened, err := New(Config{MetadataFile: metadataFile, FileProvider: provider, Logger: testLogger()})
	require.NoError(t, err)

	assert.Len(t, reopened.ListSessions(ctx), 2)
	id, ok := reopened.ActiveSession(ctx)
	assert.True(t, ok)
	assert.Equal(t, "b", id)
	info, _ := reopened.Get(ctx, "b")
	assert.Equal(t, "cli", info.Source)
}
