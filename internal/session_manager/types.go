package session_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"time"

	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// SessionInfo is what the registry knows about one conversation
type SessionInfo struct {
	SessionID  string    `json:"session_id"`
	Source     string    `json:"source"` // "http" or "cli"
	Turns      int       `json:"turns"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Config holds configuration for the session manager
type Config struct {
	MetadataFile string // relative to the FileProvider root
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
	Now          func() time.Time
}

// metadataStore is the layout of the metadata JSON file
type metadataStore struct {
	Active   string                 `json:"active,omitempty"`
	Sessions map[string]SessionInfo `json:"sessions"`
}
