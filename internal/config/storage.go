package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Storage backends
const (
	BackendLocal    = "local"
	BackendS3       = "s3"
	BackendGit      = "git"
	BackendPostgres = "postgres"
)

// StorageConfig holds storage/persistence configuration
type StorageConfig struct {
	Backend  string `env:"STORAGE_BACKEND" yaml:"backend" default:"local"`
	LocalDir string `env:"STORAGE_LOCAL_DIR" yaml:"local_dir" default:"./data"`

	S3Bucket   string `env:"STORAGE_S3_BUCKET" yaml:"s3_bucket"`
	S3Prefix   string `env:"STORAGE_S3_PREFIX" yaml:"s3_prefix"`
	S3Region   string `env:"STORAGE_S3_REGION" yaml:"s3_region"`
	S3Profile  string `env:"STORAGE_S3_PROFILE" yaml:"s3_profile"`
	S3Endpoint string `env:"STORAGE_S3_ENDPOINT" yaml:"s3_endpoint"` // S3 compatible stores (minio)

	GitPath        string `env:"STORAGE_GIT_PATH" yaml:"git_path"`
	GitAuthorName  string `env:"STORAGE_GIT_AUTHOR_NAME" yaml:"git_author_name"`
	GitAuthorEmail string `env:"STORAGE_GIT_AUTHOR_EMAIL" yaml:"git_author_email"`
	GitInit        bool   `env:"STORAGE_GIT_INIT" yaml:"git_init" default:"true"`

	// SessionMetadataFile is relative to the backend root
	SessionMetadataFile string `env:"STORAGE_SESSION_METADATA_FILE" yaml:"session_metadata_file" default:"sessions.json"`
}

func (s StorageConfig) Validate() error {
	var result error
	switch s.Backend {
	case BackendLocal:
		if s.LocalDir == "" {
			result = multierror.Append(result, fmt.Errorf("local_dir is required for the local backend"))
		}
	case BackendS3:
		if s.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3_bucket is required for the s3 backend"))
		}
	case BackendGit:
		if s.GitPath == "" {
			result = multierror.Append(result, fmt.Errorf("git_path is required for the git backend"))
		}
	case BackendPostgres:
	default:
		result = multierror.Append(result, fmt.Errorf("storage backend must be one of local, s3, git, postgres, got %q", s.Backend))
	}
	if s.SessionMetadataFile == "" {
		result = multierror.Append(result, fmt.Errorf("session_metadata_file is required"))
	}
	return result
}
