package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresFileProvider stores each document as one row of the documents
// table. Paths are the primary key.
type PostgresFileProvider struct {
	pool *pgxpool.Pool
}

// NewPostgresFileProvider wraps an open pool. Run Migrate first.
func NewPostgresFileProvider(pool *pgxpool.Pool) *PostgresFileProvider {
	return &PostgresFileProvider{pool: pool}
}

func (p *PostgresFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return data, nil
}

func (p *PostgresFileProvider) Write(ctx context.Context, path string, data []byte) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO documents (path, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, data)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

func (p *PostgresFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE path = $1)`, path).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check document %s: %w", path, err)
	}
	return exists, nil
}

func (p *PostgresFileProvider) Delete(ctx context.Context, path string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}

func (p *PostgresFileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT path FROM documents WHERE starts_with(path, $1) ORDER BY path`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents under %s: %w", prefix, err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan document paths: %w", err)
	}
	if paths == nil {
		paths = []string{}
	}
	return paths, nil
}

// Ping lets readiness checks probe the database.
func (p *PostgresFileProvider) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
