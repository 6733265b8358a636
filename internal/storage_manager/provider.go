// Package storage_manager provides the storage backends session documents
// live on. Every backend is exposed as a FileProvider; StorageManager hands
// out namespace-scoped views of a single backend.
package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned (wrapped) by Read when a path has no content.
var ErrNotFound = errors.New("object not found")

// FileProvider is the byte-level storage contract shared by all backends.
// Paths are slash separated and relative to the provider root.
type FileProvider interface {
	// Read returns the content at path, or an error wrapping ErrNotFound
	Read(ctx context.Context, path string) ([]byte, error)

	// Write replaces the content at path, creating it if needed
	Write(ctx context.Context, path string, data []byte) error

	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every path under prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)
}

// LocalFileProvider stores documents as files under a base directory.
type LocalFileProvider struct {
	baseDir string
}

func NewLocalFileProvider(baseDir string) *LocalFileProvider {
	return &LocalFileProvider{baseDir: baseDir}
}

// resolve maps a relative path into baseDir and refuses paths that climb out of it.
func (p *LocalFileProvider) resolve(path string) (string, error) {
	full := filepath.Join(p.baseDir, filepath.FromSlash(path))
	rel, err := filepath.Rel(p.baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return full, nil
}

func (p *LocalFileProvider) Read(_ context.Context, path string) ([]byte, error) {
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) //nolint:gosec // G304: resolved inside baseDir
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return data, err
}

// Write goes through a temp file and rename so a crash never leaves a
// half-written document behind.
func (p *LocalFileProvider) Write(_ context.Context, path string, data []byte) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (p *LocalFileProvider) Exists(_ context.Context, path string) (bool, error) {
	full, err := p.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (p *LocalFileProvider) Delete(_ context.Context, path string) error {
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *LocalFileProvider) List(_ context.Context, prefix string) ([]string, error) {
	return walkFiles(p.baseDir, prefix)
}

// walkFiles lists regular files below root/prefix as slash separated paths
// relative to root. Dot-directories (.git) and temp files are skipped.
func walkFiles(root, prefix string) ([]string, error) {
	result := []string{}
	start := filepath.Join(root, filepath.FromSlash(prefix))
	err := filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != start && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		result = append(result, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(result)
	return result, nil
}

// PrefixedFileProvider scopes another provider to a sub-namespace.
type PrefixedFileProvider struct {
	provider FileProvider
	prefix   string
}

func NewPrefixedFileProvider(provider FileProvider, prefix string) *PrefixedFileProvider {
	return &PrefixedFileProvider{provider: provider, prefix: strings.Trim(prefix, "/")}
}

func (p *PrefixedFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.provider.Read(ctx, p.prefixPath(path))
}

func (p *PrefixedFileProvider) Write(ctx context.Context, path string, data []byte) error {
	return p.provider.Write(ctx, p.prefixPath(path), data)
}

func (p *PrefixedFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.provider.Exists(ctx, p.prefixPath(path))
}

func (p *PrefixedFileProvider) Delete(ctx context.Context, path string) error {
	return p.provider.Delete(ctx, p.prefixPath(path))
}

func (p *PrefixedFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	files, err := p.provider.List(ctx, p.prefixPath(prefix))
	if err != nil {
		return nil, err
	}
	strip := p.prefixPath("")
	result := make([]string, 0, len(files))
	for _, f := range files {
		if rest, ok := strings.CutPrefix(f, strip); ok {
			result = append(result, rest)
		}
	}
	return result, nil
}

func (p *PrefixedFileProvider) prefixPath(path string) string {
	if p.prefix == "" {
		return path
	}
	return p.prefix + "/" + path
}
