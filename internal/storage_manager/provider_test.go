package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileProvider(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := NewLocalFileProvider(dir)

	t.Run("missing read wraps ErrNotFound", func(t *testing.T) {
		_, err := p.Read(ctx, "sessions/a/npcs.json")
		assert.ErrorIs(t, err, ErrNotFound)
		ok, err := p.Exists(ctx, "sessions/a/npcs.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("write then read", func(t *testing.T) {
		require.NoError(t, p.Write(ctx, "sessions/a/npcs.json", []byte(`{"version":1}`)))
		data, err := p.Read(ctx, "sessions/a/npcs.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":1}`, string(data))

		require.NoError(t, p.Write(ctx, "sessions/a/npcs.json", []byte(`{"version":2}`)))
		data, err = p.Read(ctx, "sessions/a/npcs.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"version":2}`, string(data))
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(dir, "sessions", "a"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "npcs.json", entries[0].Name())
	})

	t.Run("list is sorted and relative", func(t *testing.T) {
		require.NoError(t, p.Write(ctx, "default/npcs.json", []byte(`{}`)))
		files, err := p.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"default/npcs.json", "sessions/a/npcs.json"}, files)

		files, err = p.List(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, p.Delete(ctx, "default/npcs.json"))
		require.NoError(t, p.Delete(ctx, "default/npcs.json"))
		ok, err := p.Exists(ctx, "default/npcs.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("refuses paths outside the root", func(t *testing.T) {
		assert.Error(t, p.Write(ctx, "../escape.json", []byte("x")))
		_, err := p.Read(ctx, "../../etc/passwd")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestPrefixedFileProvider(t *testing.T) {
	ctx := context.Background()
	root := NewLocalFileProvider(t.TempDir())
	npcs := NewPrefixedFileProvider(root, "npcs/")
	other := NewPrefixedFileProvider(root, "sessions")

	require.NoError(t, npcs.Write(ctx, "default/npcs.json", []byte("1")))
	require.NoError(t, other.Write(ctx, "metadata.json", []byte("2")))

	files, err := npcs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"default/npcs.json"}, files)

	ok, err := root.Exists(ctx, "npcs/default/npcs.json")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = other.Read(ctx, "default/npcs.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return f.failPut
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeS3) HeadObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[bucket+"/"+key]; !ok {
		return ErrNotFound
	}
	return nil
}

func (f *fakeS3) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeS3) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(rest, prefix) {
			keys = append(keys, rest)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestS3FileProvider(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	p := NewS3FileProvider("bucket", "/registry/", client)

	require.NoError(t, p.Write(ctx, "sessions/x/npcs.json", []byte("{}")))
	assert.Contains(t, client.objects, "bucket/registry/sessions/x/npcs.json")

	ok, err := p.Exists(ctx, "sessions/x/npcs.json")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(ctx, "sessions/y/npcs.json")
	require.NoError(t, err)
	assert.False(t, ok)

	files, err := p.List(ctx, "sessions/")
	require.NoError(t, err)
	assert.Equal(t, []string{"sessions/x/npcs.json"}, files)

	require.NoError(t, p.Delete(ctx, "sessions/x/npcs.json"))
	_, err = p.Read(ctx, "sessions/x/npcs.json")
	assert.ErrorIs(t, err, ErrNotFound)

	client.failPut = errors.New("throttled")
	assert.Error(t, p.Write(ctx, "a", []byte("b")))
}

func TestStorageManager(t *testing.T) {
	t.Run("validates config", func(t *testing.T) {
		for _, cfg := range []Config{
			{Backend: BackendLocal},
			{Backend: BackendS3, S3Config: &S3Config{Bucket: "b"}},
			{Backend: BackendGit},
			{Backend: BackendPostgres, PostgresConfig: &PostgresConfig{}},
			{Backend: "tape"},
		} {
			_, err := New(cfg)
			assert.Error(t, err, cfg.Backend)
		}
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		ctx := context.Background()
		m, err := New(Config{Backend: BackendLocal, LocalConfig: &LocalConfig{BaseDir: t.TempDir()}})
		require.NoError(t, err)
		assert.Equal(t, BackendLocal, m.Backend())
		require.NoError(t, m.Ping(ctx))

		require.NoError(t, m.GetProvider("npcs").Write(ctx, "a.json", []byte("1")))
		ok, err := m.GetProvider("sessions").Exists(ctx, "a.json")
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = m.GetProvider("").Exists(ctx, "npcs/a.json")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("git backend", func(t *testing.T) {
		m, err := New(Config{Backend: BackendGit, GitConfig: &GitProviderOptions{
			Path: filepath.Join(t.TempDir(), "repo"), InitIfMissing: true,
		}})
		require.NoError(t, err)
		assert.Equal(t, BackendGit, m.Backend())
	})
}
