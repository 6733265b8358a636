// Package turn drives one narrative turn through the extraction parser into
// the identity store, and serializes every other store operation behind the
// same lock so a session switch never interleaves with a mutation.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/lewisedginton/npc_registry/internal/document_store"
	"github.com/lewisedginton/npc_registry/internal/extraction"
	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/internal/session_manager"
	"github.com/lewisedginton/npc_registry/pkg/logger"
	"github.com/lewisedginton/npc_registry/pkg/metrics"
)

const (
	// DefaultSession addresses the default document explicitly
	DefaultSession = "_default"

	DefaultInteractionPath = "interaction"
)

// ErrInvalidPayload is returned for turn payloads that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid turn payload")

type Config struct {
	Store    *identity_store.Store
	Parser   *extraction.Parser
	Sessions session_manager.Manager // optional
	Metrics  *metrics.Metrics        // optional
	Logger   logger.Logger

	// InteractionPath is a gjson path to the flat mapping inside a payload.
	// Payloads without it are parsed as a whole.
	InteractionPath string
}

// Processor owns the identity store. All access goes through it.
type Processor struct {
	mu       sync.Mutex
	store    *identity_store.Store
	parser   *extraction.Parser
	sessions session_manager.Manager
	metrics  *metrics.Metrics
	log      logger.Logger
	path     string
}

func New(cfg Config) (*Processor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("identity store is required")
	}
	if cfg.Parser == nil {
		return nil, fmt.Errorf("extraction parser is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.InteractionPath == "" {
		cfg.InteractionPath = DefaultInteractionPath
	}
	return &Processor{
		store:    cfg.Store,
		parser:   cfg.Parser,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		path:     cfg.InteractionPath,
	}, nil
}

// TurnInput is one raw extraction payload.
type TurnInput struct {
	// SessionID selects the document; blank falls back to the active
	// session and then to the default document
	SessionID string
	MessageID string
	Payload   []byte
	// Source is recorded with the session ("http", "cli")
	Source string
}

// TurnReport summarizes what a turn did.
type TurnReport struct {
	SessionID    string         `json:"sessionId,omitempty"`
	Scope        string         `json:"scope"`
	MessageID    string         `json:"messageId,omitempty"`
	Entities     []string       `json:"entities"`
	Changed      int            `json:"changed"`
	Rejections   map[string]int `json:"rejections,omitempty"`
	Unscoped     []string       `json:"unscoped,omitempty"`
	Unresolved   []int          `json:"unresolved,omitempty"`
	Placeholders []string       `json:"placeholders,omitempty"`
}

// ProcessTurn parses the payload and applies the candidates. Format
// violations are reported, not returned as errors.
func (p *Processor) ProcessTurn(ctx context.Context, in TurnInput) (TurnReport, error) {
	start := time.Now()
	payload, err := p.selectPayload(in.Payload)
	if err != nil {
		return TurnReport{}, err
	}

	sessionID, scope := p.resolve(ctx, in.SessionID)
	report := TurnReport{SessionID: sessionID, Scope: scope.String(), MessageID: in.MessageID, Entities: []string{}}
	log := logger.FromContext(ctx, p.log).WithFields(logger.StringField("scope", scope.String()))

	p.mu.Lock()
	err = p.store.BindSession(ctx, scope)
	if err == nil {
		res := p.parser.Parse(payload, p.store)
		report.Rejections = res.Rejections()
		report.Unscoped, report.Unresolved, report.Placeholders = res.Unscoped, res.Unresolved, res.Placeholders
		for _, c := range res.Candidates {
			report.Entities = append(report.Entities, c.Name)
		}
		report.Changed, err = p.store.ApplyExtraction(ctx, res.Candidates,
			identity_store.TurnContext{MessageID: in.MessageID, ChatID: sessionID})
	}
	p.mu.Unlock()
	if err != nil {
		log.Error("Turn failed", logger.ErrorField(err))
		return report, err
	}

	if p.sessions != nil && sessionID != "" {
		if _, err := p.sessions.Touch(ctx, sessionID, in.Source); err != nil {
			log.Warn("Failed to record session activity", logger.ErrorField(err))
		}
	}
	p.metrics.RecordTurn()
	for reason, n := range report.Rejections {
		p.metrics.RecordRejections(reason, n)
	}

	log.Info("Processed turn",
		logger.StringField("message_id", in.MessageID),
		logger.IntField("candidates", len(report.Entities)),
		logger.IntField("changed", report.Changed),
		logger.IntField("rejected", len(report.Unscoped)+len(report.Unresolved)+len(report.Placeholders)),
		logger.DurationField("duration", time.Since(start)))
	return report, nil
}

// resolve maps a requested session id to a scope. The returned id is empty
// for the default document.
func (p *Processor) resolve(ctx context.Context, sessionID string) (string, document_store.Scope) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == DefaultSession {
		return "", document_store.Default{}
	}
	if sessionID == "" && p.sessions != nil {
		sessionID, _ = p.sessions.ActiveSession(ctx)
	}
	return sessionID, document_store.ScopeFor(sessionID)
}

// selectPayload picks the interaction object out of a raw payload.
func (p *Processor) selectPayload(raw []byte) (extraction.Payload, error) {
	if gjson.ValidBytes(raw) {
		if sub := gjson.GetBytes(raw, p.path); sub.Exists() {
			if !sub.IsObject() {
				return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPayload, p.path)
			}
			raw = []byte(sub.Raw)
		}
		payload, err := extraction.PayloadFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return payload, nil
	}

	var loose any
	if err := json5.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	obj, ok := loose.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload must be an object", ErrInvalidPayload)
	}
	if sub, found := lookupPath(obj, p.path); found {
		m, ok := sub.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPayload, p.path)
		}
		obj = m
	}
	return extraction.PayloadFromMap(obj), nil
}

func lookupPath(obj map[string]any, path string) (any, bool) {
	var cur any = obj
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
