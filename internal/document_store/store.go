package document_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// Store gets and sets whole documents. Get reports absence with ok=false
// rather than an error.
type Store interface {
	Get(ctx context.Context, key string, scope Scope) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, scope Scope, data []byte) error
}

// FileStore implements Store on top of a storage_manager.FileProvider.
type FileStore struct {
	provider storage_manager.FileProvider
	log      logger.Logger
}

// Config holds the dependencies for NewFileStore.
type Config struct {
	FileProvider storage_manager.FileProvider
	Logger       logger.Logger
}

func NewFileStore(cfg Config) *FileStore {
	if cfg.FileProvider == nil {
		panic("document_store: FileProvider is required")
	}
	if cfg.Logger == nil {
		panic("document_store: Logger is required")
	}
	return &FileStore{provider: cfg.FileProvider, log: cfg.Logger}
}

func (s *FileStore) Get(ctx context.Context, key string, scope Scope) ([]byte, bool, error) {
	start := time.Now()
	path := documentPath(key, scope)
	data, err := s.provider.Read(ctx, path)
	if errors.Is(err, storage_manager.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	s.log.Debug("Document loaded",
		logger.StringField("path", path),
		logger.IntField("bytes", len(data)),
		logger.DurationField("duration", time.Since(start)))
	return data, true, nil
}

func (s *FileStore) Set(ctx context.Context, key string, scope Scope, data []byte) error {
	start := time.Now()
	path := documentPath(key, scope)
	if err := s.provider.Write(ctx, path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.log.Debug("Document saved",
		logger.StringField("path", path),
		logger.IntField("bytes", len(data)),
		logger.DurationField("duration", time.Since(start)))
	return nil
}

// Sessions lists the ids of sessions holding a document under key.
func (s *FileStore) Sessions(ctx context.Context, key string) ([]string, error) {
	files, err := s.provider.List(ctx, "sessions/")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	suffix := "/" + key + ".json"
	ids := []string{}
	for _, f := range files {
		rest, ok := strings.CutPrefix(f, "sessions/")
		if !ok {
			continue
		}
		escaped, ok := strings.CutSuffix(rest, suffix)
		if !ok || strings.Contains(escaped, "/") {
			continue
		}
		id, err := url.PathUnescape(escaped)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
