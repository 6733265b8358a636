package turn

import (
	"context"

	"github.com/lewisedginton/npc_registry/internal/identity_store"
)

// bind must be called with p.mu held.
func (p *Processor) bind(ctx context.Context, sessionID string) error {
	_, scope := p.resolve(ctx, sessionID)
	return p.store.BindSession(ctx, scope)
}

func (p *Processor) Search(ctx context.Context, sessionID string, opts identity_store.SearchOptions) ([]identity_store.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return nil, err
	}
	return p.store.Search(opts), nil
}

func (p *Processor) Get(ctx context.Context, sessionID, id string) (identity_store.Entity, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return identity_store.Entity{}, false, err
	}
	e, ok := p.store.Get(id)
	return e, ok, nil
}

func (p *Processor) Delete(ctx context.Context, sessionID, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return false, err
	}
	return p.store.DeleteEntity(ctx, id)
}

func (p *Processor) Export(ctx context.Context, sessionID string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return nil, err
	}
	return p.store.ExportJSON()
}

func (p *Processor) Import(ctx context.Context, sessionID string, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return 0, err
	}
	return p.store.ImportDocument(ctx, data)
}

// Cleanup removes placeholder-named entities.
func (p *Processor) Cleanup(ctx context.Context, sessionID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.bind(ctx, sessionID); err != nil {
		return 0, err
	}
	return p.store.CleanupPlaceholders(ctx)
}

// Flush persists the bound document, if any.
func (p *Processor) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.store.Scope() == nil {
		return nil
	}
	return p.store.Persist(ctx)
}

// StoreErrors is the identity store's storage failure count.
func (p *Processor) StoreErrors() int64 {
	return p.store.ErrorCount()
}
