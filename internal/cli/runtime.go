package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewisedginton/npc_registry/internal/config"
	"github.com/lewisedginton/npc_registry/internal/document_store"
	"github.com/lewisedginton/npc_registry/internal/extraction"
	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/lewisedginton/npc_registry/internal/session_manager"
	"github.com/lewisedginton/npc_registry/internal/storage_manager"
	"github.com/lewisedginton/npc_registry/internal/turn"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/metrics"
)

// Storage namespaces inside the selected backend
const (
	documentsNamespace = "documents"
	metaNamespace      = "meta"
)

// runtime is the wired object graph shared by every command.
type runtime struct {
	cfg       *config.AppConfig
	log       logger.Logger
	storage   *storage_manager.StorageManager
	metrics   *metrics.Metrics
	events    *notify.Bus
	sessions  session_manager.Manager
	processor *turn.Processor
	pool      *pgxpool.Pool
}

func newRuntime(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: log}

	sm, err := rt.createStorageManager(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}
	rt.storage = sm

	rt.metrics = metrics.NewMetrics(cfg.Metrics.EnableHTTPMetrics, cfg.Metrics.EnableStoreMetrics, log)
	rt.events = notify.NewBus(log)
	rt.events.Subscribe("log", notify.LogObserver(log))
	rt.events.Subscribe("metrics", notify.MetricsObserver(rt.metrics))

	docs := document_store.NewFileStore(document_store.Config{
		FileProvider: sm.GetProvider(documentsNamespace),
		Logger:       log,
	})
	store := identity_store.New(identity_store.Config{
		Documents:        docs,
		Events:           rt.events,
		Logger:           log,
		DocumentKey:      cfg.Extraction.DocumentKey,
		LegacyKey:        cfg.Extraction.LegacyKey,
		PlaceholderLabel: cfg.Extraction.PlaceholderLabel,
		PositionPrefix:   cfg.Extraction.PositionPrefix,
	})
	parser := extraction.New(extraction.Config{
		Prefix:     cfg.Extraction.PositionPrefix,
		NameFields: cfg.Extraction.NameFields,
		Logger:     log,
	})

	rt.sessions, err = session_manager.New(session_manager.Config{
		MetadataFile: cfg.Storage.SessionMetadataFile,
		FileProvider: sm.GetProvider(metaNamespace),
		Logger:       log,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	rt.processor, err = turn.New(turn.Config{
		Store:           store,
		Parser:          parser,
		Sessions:        rt.sessions,
		Metrics:         rt.metrics,
		Logger:          log,
		InteractionPath: cfg.Extraction.InteractionPath,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create turn processor: %w", err)
	}
	return rt, nil
}

// Close releases backend connections. Mutations are persisted as they
// happen, so there is nothing to flush here.
func (rt *runtime) Close() {
	if rt.pool != nil {
		rt.pool.Close()
		rt.pool = nil
	}
}

func (rt *runtime) createStorageManager(ctx context.Context) (*storage_manager.StorageManager, error) {
	cfg := &rt.cfg.Storage

	switch cfg.Backend {
	case config.BackendLocal:
		rt.log.Info("Using local file-based storage", logger.StringField("directory", cfg.LocalDir))

		if err := os.MkdirAll(cfg.LocalDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage_manager.New(storage_manager.Config{
			Backend:     storage_manager.BackendLocal,
			LocalConfig: &storage_manager.LocalConfig{BaseDir: cfg.LocalDir},
		})

	case config.BackendS3:
		rt.log.Info("Using S3-based storage",
			logger.StringField("bucket", cfg.S3Bucket),
			logger.StringField("prefix", cfg.S3Prefix),
			logger.StringField("region", cfg.S3Region))

		configOptions := []func(*awsconfig.LoadOptions) error{}
		if cfg.S3Profile != "" {
			configOptions = append(configOptions, awsconfig.WithSharedConfigProfile(cfg.S3Profile))
		}
		if cfg.S3Region != "" {
			configOptions = append(configOptions, awsconfig.WithRegion(cfg.S3Region))
		}

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.S3Endpoint)
				o.UsePathStyle = true
			}
		})

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendS3,
			S3Config: &storage_manager.S3Config{
				Bucket: cfg.S3Bucket,
				Prefix: cfg.S3Prefix,
				Client: s3Client,
			},
		})

	case config.BackendGit:
		rt.log.Info("Using git-backed storage", logger.StringField("path", cfg.GitPath))

		return storage_manager.New(storage_manager.Config{
			Backend: storage_manager.BackendGit,
			GitConfig: &storage_manager.GitProviderOptions{
				Path:          cfg.GitPath,
				AuthorName:    cfg.GitAuthorName,
				AuthorEmail:   cfg.GitAuthorEmail,
				InitIfMissing: cfg.GitInit,
			},
		})

	case config.BackendPostgres:
		db := rt.cfg.Database
		rt.log.Info("Using postgres storage",
			logger.StringField("host", db.Host),
			logger.StringField("database", db.Database))

		pool, err := pgxpool.New(ctx, db.PoolConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		rt.pool = pool

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to reach database: %w", err)
		}
		if db.RunMigrations {
			if err := storage_manager.Migrate(pool, rt.log); err != nil {
				return nil, err
			}
		}
		return storage_manager.New(storage_manager.Config{
			Backend:        storage_manager.BackendPostgres,
			PostgresConfig: &storage_manager.PostgresConfig{Pool: pool},
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
