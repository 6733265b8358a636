package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BackendType represents the type of storage backend.
type BackendType string

const (
	BackendLocal    BackendType = "local"
	BackendS3       BackendType = "s3"
	BackendGit      BackendType = "git"
	BackendPostgres BackendType = "postgres"
)

// Config selects and configures one backend. Only the block matching
// Backend is read.
type Config struct {
	Backend BackendType

	LocalConfig    *LocalConfig
	S3Config       *S3Config
	GitConfig      *GitProviderOptions
	PostgresConfig *PostgresConfig
}

type LocalConfig struct {
	BaseDir string
}

type S3Config struct {
	Bucket string
	Prefix string
	Client *s3.Client
}

type PostgresConfig struct {
	Pool *pgxpool.Pool
}

// StorageManager hands out namespace-scoped providers over one backend.
type StorageManager struct {
	backend  BackendType
	provider FileProvider
}

func New(config Config) (*StorageManager, error) {
	var provider FileProvider

	switch config.Backend {
	case BackendLocal:
		if config.LocalConfig == nil || config.LocalConfig.BaseDir == "" {
			return nil, fmt.Errorf("base directory is required for local backend")
		}
		provider = NewLocalFileProvider(config.LocalConfig.BaseDir)

	case BackendS3:
		if config.S3Config == nil || config.S3Config.Bucket == "" {
			return nil, fmt.Errorf("bucket is required for s3 backend")
		}
		if config.S3Config.Client == nil {
			return nil, fmt.Errorf("s3 client is required for s3 backend")
		}
		provider = NewS3FileProvider(config.S3Config.Bucket, config.S3Config.Prefix, NewAWSS3Client(config.S3Config.Client))

	case BackendGit:
		if config.GitConfig == nil {
			return nil, fmt.Errorf("git config is required for git backend")
		}
		git, err := NewGitFileProvider(*config.GitConfig)
		if err != nil {
			return nil, err
		}
		provider = git

	case BackendPostgres:
		if config.PostgresConfig == nil || config.PostgresConfig.Pool == nil {
			return nil, fmt.Errorf("connection pool is required for postgres backend")
		}
		provider = NewPostgresFileProvider(config.PostgresConfig.Pool)

	default:
		return nil, fmt.Errorf("unsupported backend type: %q", config.Backend)
	}

	return &StorageManager{backend: config.Backend, provider: provider}, nil
}

// NewWithProvider wraps a ready-made provider, mostly for tests.
func NewWithProvider(provider FileProvider) *StorageManager {
	return &StorageManager{provider: provider}
}

// GetProvider returns the provider scoped to namespace, e.g. "npcs" for
// identity documents or "sessions" for session metadata.
func (m *StorageManager) GetProvider(namespace string) FileProvider {
	if namespace == "" {
		return m.provider
	}
	return NewPrefixedFileProvider(m.provider, namespace)
}

func (m *StorageManager) Backend() BackendType {
	return m.backend
}

// Ping checks the backend is reachable. Backends without a cheap probe
// fall back to a List of the root.
func (m *StorageManager) Ping(ctx context.Context) error {
	if pinger, ok := m.provider.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	_, err := m.provider.List(ctx, ".healthcheck")
	return err
}
