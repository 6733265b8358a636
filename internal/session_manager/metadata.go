package session_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// loadMetadata reads the metadata file. A missing file is an empty index.
func (sm *sessionManager) loadMetadata(ctx context.Context) error {
	exists, err := sm.config.FileProvider.Exists(ctx, sm.config.MetadataFile)
	if err != nil {
		return fmt.Errorf("failed to check metadata file existence: %w", err)
	}
	if !exists {
		sm.config.Logger.Info("Session metadata file does not exist, starting with empty index",
			logger.StringField("file", sm.config.MetadataFile))
		return nil
	}

	data, err := sm.config.FileProvider.Read(ctx, sm.config.MetadataFile)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}
	var store metadataStore
	if err := json.Unmarshal(data, &store); err != nil {
		return fmt.Errorf("failed to parse metadata JSON: %w", err)
	}
	if store.Sessions != nil {
		sm.sessions = store.Sessions
	}
	sm.active = store.Active

	sm.config.Logger.Info("Loaded session metadata",
		logger.StringField("file", sm.config.MetadataFile),
		logger.IntField("sessions", len(sm.sessions)))
	return nil
}

// saveMetadata writes the whole index. Callers hold sm.mutex.
func (sm *sessionManager) saveMetadata(ctx context.Context) error {
	data, err := json.MarshalIndent(metadataStore{Active: sm.active, Sessions: sm.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := sm.config.FileProvider.Write(ctx, sm.config.MetadataFile, data); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}
