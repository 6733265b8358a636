package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// ExportDocument returns a deep copy of the bound document.
func (s *Store) ExportDocument() Document {
	return s.doc.Clone()
}

// ExportJSON renders the bound document in its persisted form.
func (s *Store) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s.doc, "", "  ")
}

// ImportDocument replaces the bound document with data and persists it.
// JSON5 input (comments, trailing commas, unquoted keys) is accepted.
// Missing counters and indexes are rebuilt the same way a load repairs
// them. It returns the new entity count.
func (s *Store) ImportDocument(ctx context.Context, data []byte) (int, error) {
	if s.scope == nil {
		return 0, ErrNotBound
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return 0, err
	}
	report := doc.repair()
	s.doc = doc
	s.log.Info("Imported identity document",
		logger.StringField("scope", s.scopeName()),
		logger.IntField("npcs", len(doc.NPCs)),
		logger.IntField("added_index_entries", report.addedIndex),
		logger.IntField("dropped_index_entries", report.droppedIndex))

	if err := s.Persist(ctx); err != nil {
		return len(doc.NPCs), err
	}
	s.events.Emit(notify.Event{Type: notify.StoreReloaded, Scope: s.scopeName(), Count: len(doc.NPCs)})
	return len(doc.NPCs), nil
}

// ParseDocument decodes and validates an exported document without
// repairing it. Errors wrap ErrInvalidDocument.
func ParseDocument(data []byte) (*Document, error) {
	raw, err := topLevel(data)
	if err != nil {
		return nil, err
	}
	npcs, ok := raw["npcs"]
	if !ok {
		return nil, fmt.Errorf("%w: missing npcs mapping", ErrInvalidDocument)
	}
	if trimmed := bytes.TrimSpace(npcs); len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: npcs must be an object", ErrInvalidDocument)
	}

	canonical, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	doc := &Document{}
	if err := json.Unmarshal(canonical, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// topLevel splits the input into top-level members. Strict JSON keeps its
// field order; anything else goes through the JSON5 parser.
func topLevel(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if json.Valid(data) {
		if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
			return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidDocument)
		}
		return raw, nil
	}

	var loose any
	if err := json5.Unmarshal(data, &loose); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	obj, ok := loose.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidDocument)
	}
	raw = make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		raw[k] = encoded
	}
	return raw, nil
}
