// Package identity_store owns the NPC identities of one bound session: id
// allocation, the name index, field merging, appearance bookkeeping,
// persistence, search, import/export and deletion.
//
// A Store is not safe for concurrent use. Callers serialize every call,
// including BindSession, and wait for each mutating call to return before
// issuing the next one.
package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lewisedginton/npc_registry/internal/document_store"
	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

const (
	DefaultDocumentKey      = "npcs"
	DefaultPlaceholderLabel = "Unnamed NPC"
	DefaultPositionPrefix   = "npc"
)

var (
	// ErrNotBound is returned by operations that persist before any
	// session has been bound.
	ErrNotBound = errors.New("identity store is not bound to a session")

	// ErrInvalidDocument is returned by ImportDocument for input that is
	// not an object or has no entity mapping.
	ErrInvalidDocument = errors.New("invalid identity document")
)

// Candidate is one resolved mention produced by extraction.
type Candidate struct {
	Name   string
	Fields Fields
}

// TurnContext identifies the turn that produced a batch of candidates.
type TurnContext struct {
	MessageID string
	ChatID    string
}

// Config holds the dependencies and settings of a Store.
type Config struct {
	Documents document_store.Store
	Events    notify.Emitter
	Logger    logger.Logger

	// DocumentKey is the logical key of the per-session document
	DocumentKey string
	// LegacyKey, when set, is looked up in the global scope whenever a
	// fresh document is created, to report pre-session data
	LegacyKey string
	// PlaceholderLabel replaces blank names
	PlaceholderLabel string
	// PositionPrefix is the literal part of positional slot tokens
	PositionPrefix string

	Now func() time.Time
}

// Store is the identity registry for the currently bound session.
type Store struct {
	docs        document_store.Store
	events      notify.Emitter
	log         logger.Logger
	key         string
	legacyKey   string
	label       string
	placeholder *regexp.Regexp
	now         func() time.Time

	doc    *Document
	scope  document_store.Scope
	errors atomic.Int64
}

func New(cfg Config) *Store {
	if cfg.Documents == nil {
		panic("identity_store: Documents is required")
	}
	if cfg.Logger == nil {
		panic("identity_store: Logger is required")
	}
	if cfg.Events == nil {
		cfg.Events = notify.Discard
	}
	if cfg.DocumentKey == "" {
		cfg.DocumentKey = DefaultDocumentKey
	}
	if strings.TrimSpace(cfg.PlaceholderLabel) == "" {
		cfg.PlaceholderLabel = DefaultPlaceholderLabel
	}
	if cfg.PositionPrefix == "" {
		cfg.PositionPrefix = DefaultPositionPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		docs:        cfg.Documents,
		events:      cfg.Events,
		log:         cfg.Logger,
		key:         cfg.DocumentKey,
		legacyKey:   cfg.LegacyKey,
		label:       strings.TrimSpace(cfg.PlaceholderLabel),
		placeholder: PlaceholderPattern(cfg.PositionPrefix),
		now:         cfg.Now,
		doc:         NewDocument(),
	}
}

// PlaceholderPattern matches a bare positional slot token such as "npc0".
func PlaceholderPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `\d+$`)
}

// Scope returns the bound scope, nil before the first BindSession.
func (s *Store) Scope() document_store.Scope {
	return s.scope
}

// ErrorCount is the number of storage failures seen so far.
func (s *Store) ErrorCount() int64 {
	return s.errors.Load()
}

// Len is the number of entities in the bound document.
func (s *Store) Len() int {
	return len(s.doc.NPCs)
}

// BindSession makes scope the current document. Switching scopes flushes
// the current document first; when that flush or the following load fails
// the previous binding stays in place. A nil scope means the default
// document. The global scope is never bound.
func (s *Store) BindSession(ctx context.Context, scope document_store.Scope) error {
	if scope == nil {
		scope = document_store.Default{}
	}
	if _, ok := scope.(document_store.Global); ok {
		return fmt.Errorf("identity data cannot be bound to the global scope")
	}
	if document_store.SameScope(s.scope, scope) {
		return nil
	}
	if s.scope != nil {
		if err := s.Persist(ctx); err != nil {
			return fmt.Errorf("flush %s before switching: %w", s.scope, err)
		}
	}

	doc, err := s.load(ctx, scope)
	if err != nil {
		s.errors.Add(1)
		s.log.Error("Failed to load identity document",
			logger.StringField("scope", scope.String()), logger.ErrorField(err))
		return err
	}
	s.doc, s.scope = doc, scope
	s.log.Debug("Bound identity store",
		logger.StringField("scope", scope.String()), logger.IntField("npcs", len(doc.NPCs)))
	return nil
}

func (s *Store) load(ctx context.Context, scope document_store.Scope) (*Document, error) {
	data, ok, err := s.docs.Get(ctx, s.key, scope)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", scope, err)
	}
	if !ok {
		s.reportLegacyData(ctx)
		doc := NewDocument()
		if err := s.write(ctx, scope, doc); err != nil {
			return nil, fmt.Errorf("initialize %s: %w", scope, err)
		}
		return doc, nil
	}

	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", scope, err)
	}
	if report := doc.repair(); report.changed() {
		s.log.Warn("Repaired identity document on load",
			logger.StringField("scope", scope.String()),
			logger.IntField("dropped_index_entries", report.droppedIndex),
			logger.IntField("added_index_entries", report.addedIndex),
			logger.BoolField("next_id_raised", report.nextIDRaised))
	}
	return doc, nil
}

// reportLegacyData logs when pre-session data exists in the global scope.
// That data is never merged into a session document.
func (s *Store) reportLegacyData(ctx context.Context) {
	if s.legacyKey == "" {
		return
	}
	_, ok, err := s.docs.Get(ctx, s.legacyKey, document_store.Global{})
	if err != nil {
		s.log.Debug("Legacy identity lookup failed", logger.ErrorField(err))
		return
	}
	if ok {
		s.log.Warn("Found legacy global NPC data; it is not applied to session documents",
			logger.StringField("legacy_key", s.legacyKey))
	}
}

func (s *Store) write(ctx context.Context, scope document_store.Scope, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode identity document: %w", err)
	}
	return s.docs.Set(ctx, s.key, scope, data)
}

// Persist writes the whole bound document. On failure the in-memory state
// is kept as is, the error counter goes up and the error is returned.
func (s *Store) Persist(ctx context.Context) error {
	if s.scope == nil {
		return ErrNotBound
	}
	if err := s.write(ctx, s.scope, s.doc); err != nil {
		s.errors.Add(1)
		s.log.Error("Failed to persist identity document",
			logger.StringField("scope", s.scope.String()), logger.ErrorField(err))
		s.events.Emit(notify.Event{Type: notify.StoreSaveError, Scope: s.scope.String(), Err: err})
		return fmt.Errorf("persist %s: %w", s.scope, err)
	}
	s.events.Emit(notify.Event{Type: notify.StoreSaved, Scope: s.scope.String(), Count: len(s.doc.NPCs)})
	return nil
}

func (s *Store) scopeName() string {
	if s.scope == nil {
		return ""
	}
	return s.scope.String()
}

// NormalizeName trims name and substitutes the placeholder label for blanks.
func (s *Store) NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return s.label
	}
	return name
}

// IsPlaceholder reports whether name is a bare positional slot token.
func (s *Store) IsPlaceholder(name string) bool {
	return s.placeholder.MatchString(strings.TrimSpace(name))
}

// Ensure returns the entity for name, creating it on first use.
func (s *Store) Ensure(name string) Entity {
	e, _ := s.ensure(name, s.now().UnixMilli())
	return e.clone()
}

func (s *Store) ensure(name string, now int64) (*Entity, bool) {
	name = s.NormalizeName(name)
	if id, ok := s.doc.NameToID[name]; ok {
		if e, ok := s.doc.NPCs[id]; ok {
			return e, false
		}
	}

	id := formatID(s.doc.NextID)
	s.doc.NextID++
	e := &Entity{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	s.doc.NPCs[id] = e
	s.doc.NameToID[name] = id
	s.events.Emit(notify.Event{Type: notify.NPCCreated, Scope: s.scopeName(), EntityID: id, Name: name})
	return e, true
}

// ApplyExtraction merges a turn's candidates into the document and
// persists once. It returns how many distinct entities had their fields
// changed. An entity mentioned several times in one batch is counted as
// one appearance.
func (s *Store) ApplyExtraction(ctx context.Context, candidates []Candidate, turn TurnContext) (int, error) {
	if s.scope == nil {
		return 0, ErrNotBound
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	now := s.now().UnixMilli()
	seen := make(map[string]bool, len(candidates))
	changed := make(map[string]bool)
	for _, c := range candidates {
		e, _ := s.ensure(c.Name, now)
		merged := Merge(e.Fields, c.Fields)
		diff := changedKeys(e.Fields, merged)
		if diff > 0 {
			changed[e.ID] = true
		}
		e.Fields = merged
		if !seen[e.ID] {
			e.AppearCount++
			seen[e.ID] = true
		}
		e.LastSeen, e.UpdatedAt = now, now
		if turn.MessageID != "" {
			e.LastMessageID = Ref(turn.MessageID)
		}
		if turn.ChatID != "" {
			e.LastChatID = Ref(turn.ChatID)
		}
		s.events.Emit(notify.Event{Type: notify.NPCUpdated, Scope: s.scopeName(), EntityID: e.ID, Name: e.Name, Count: diff})
	}

	err := s.Persist(ctx)
	s.events.Emit(notify.Event{Type: notify.StoreUpdated, Scope: s.scopeName(), Count: len(candidates)})
	return len(changed), err
}

// changedKeys counts keys whose value differs between before and after.
func changedKeys(before, after Fields) int {
	n := 0
	after.Range(func(k string, v Value) bool {
		if old, ok := before.Get(k); !ok || !old.Equal(v) {
			n++
		}
		return true
	})
	return n
}

// LookupByPosition returns the name of the i-th entity in ascending id order.
func (s *Store) LookupByPosition(i int) (string, bool) {
	if i < 0 || i >= len(s.doc.NPCs) {
		return "", false
	}
	return s.doc.NPCs[s.doc.orderedIDs()[i]].Name, true
}

// Get returns a copy of the entity with the given id.
func (s *Store) Get(id string) (Entity, bool) {
	e, ok := s.doc.NPCs[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// DeleteEntity removes an entity. The name index entry goes too, unless it
// has since been pointed at another entity. Unknown ids return false and
// change nothing.
func (s *Store) DeleteEntity(ctx context.Context, id string) (bool, error) {
	if s.scope == nil {
		return false, ErrNotBound
	}
	e, ok := s.doc.NPCs[id]
	if !ok {
		return false, nil
	}
	s.remove(e)

	err := s.Persist(ctx)
	s.events.Emit(notify.Event{Type: notify.StoreUpdated, Scope: s.scopeName(), Count: len(s.doc.NPCs)})
	return true, err
}

func (s *Store) remove(e *Entity) {
	delete(s.doc.NPCs, e.ID)
	if s.doc.NameToID[e.Name] == e.ID {
		delete(s.doc.NameToID, e.Name)
	}
	s.events.Emit(notify.Event{Type: notify.NPCDeleted, Scope: s.scopeName(), EntityID: e.ID, Name: e.Name})
}

// CleanupPlaceholders deletes every entity whose name is a bare positional
// slot token and returns how many were removed.
func (s *Store) CleanupPlaceholders(ctx context.Context) (int, error) {
	if s.scope == nil {
		return 0, ErrNotBound
	}
	removed := 0
	for _, id := range s.doc.orderedIDs() {
		if e := s.doc.NPCs[id]; s.placeholder.MatchString(e.Name) {
			s.remove(e)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	s.log.Info("Removed placeholder NPCs",
		logger.StringField("scope", s.scopeName()), logger.IntField("removed", removed))

	err := s.Persist(ctx)
	s.events.Emit(notify.Event{Type: notify.StoreUpdated, Scope: s.scopeName(), Count: len(s.doc.NPCs)})
	return removed, err
}

// SortKey selects the Search ordering.
type SortKey string

const (
	SortByLastSeen    SortKey = "lastSeen"
	SortByName        SortKey = "name"
	SortByAppearCount SortKey = "appearCount"
)

// ParseSortKey accepts the JSON field names; anything else is lastSeen.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortByName, SortByAppearCount:
		return SortKey(s)
	default:
		return SortByLastSeen
	}
}

// SearchOptions filters and orders Search results. The zero value lists
// everything by lastSeen, newest first.
type SearchOptions struct {
	// Query is a case-sensitive substring of the name; empty matches all
	Query     string
	SortBy    SortKey
	Ascending bool
}

// Search returns matching entities. Sorting is stable over ascending id
// order, so ties keep that order in both directions.
func (s *Store) Search(opts SearchOptions) []Entity {
	out := make([]Entity, 0, len(s.doc.NPCs))
	for _, id := range s.doc.orderedIDs() {
		e := s.doc.NPCs[id]
		if opts.Query == "" || strings.Contains(e.Name, opts.Query) {
			out = append(out, e.clone())
		}
	}

	var less func(a, b Entity) bool
	switch opts.SortBy {
	case SortByName:
		less = func(a, b Entity) bool { return a.Name < b.Name }
	case SortByAppearCount:
		less = func(a, b Entity) bool { return a.AppearCount < b.AppearCount }
	default:
		less = func(a, b Entity) bool { return a.LastSeen < b.LastSeen }
	}
	sort.SliceStable(out, func(i, j int) bool {
		if opts.Ascending {
			return less(out[i], out[j])
		}
		return less(out[j], out[i])
	})
	return out
}
