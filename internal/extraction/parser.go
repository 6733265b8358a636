// Package extraction turns a flat per-turn extraction payload into identity
// candidates. Keys must be scoped to an entity slot ("npc0.mood"); anything
// else is reported and ignored.
package extraction

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/lewisedginton/npc_registry/internal/identity_store"
	"github.com/lewisedginton/npc_registry/pkg/logger"
)

// DefaultNameFields are the field spellings read as an entity name.
var DefaultNameFields = []string{"name", "姓名", "名字", "名称", "nombre", "nom", "nome", "имя", "名前"}

// Rejection reasons, also used as metric labels.
const (
	ReasonUnscoped    = "unscoped"
	ReasonUnresolved  = "unresolved"
	ReasonPlaceholder = "placeholder"
)

// PositionLookup resolves a slot ordinal to a known entity name.
// *identity_store.Store satisfies it.
type PositionLookup interface {
	LookupByPosition(i int) (string, bool)
}

type Config struct {
	// Prefix is the literal part of a slot token; defaults to "npc"
	Prefix string
	// NameFields are matched case-insensitively; defaults to DefaultNameFields
	NameFields []string
	Logger     logger.Logger
}

// Parser is safe for concurrent use.
type Parser struct {
	prefix      string
	slot        *regexp.Regexp
	placeholder *regexp.Regexp
	nameFields  map[string]struct{}
	log         logger.Logger
}

// Result is the outcome of one Parse. Candidates are in first-seen slot
// order; the other lists describe what was dropped.
type Result struct {
	Candidates []identity_store.Candidate
	// Unscoped holds keys without a slot prefix
	Unscoped []string
	// Unresolved holds slot ordinals that had no name and no known entity
	Unresolved []int
	// Placeholders holds names that were just a bare slot token
	Placeholders []string
}

// Rejections counts dropped items per reason.
func (r Result) Rejections() map[string]int {
	out := map[string]int{}
	if n := len(r.Unscoped); n > 0 {
		out[ReasonUnscoped] = n
	}
	if n := len(r.Unresolved); n > 0 {
		out[ReasonUnresolved] = n
	}
	if n := len(r.Placeholders); n > 0 {
		out[ReasonPlaceholder] = n
	}
	return out
}

func New(cfg Config) *Parser {
	if cfg.Prefix == "" {
		cfg.Prefix = identity_store.DefaultPositionPrefix
	}
	if len(cfg.NameFields) == 0 {
		cfg.NameFields = DefaultNameFields
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}

	names := make(map[string]struct{}, len(cfg.NameFields))
	for _, n := range cfg.NameFields {
		if n = strings.TrimSpace(n); n != "" {
			names[fold(n)] = struct{}{}
		}
	}
	return &Parser{
		prefix:      cfg.Prefix,
		slot:        regexp.MustCompile(`^` + regexp.QuoteMeta(cfg.Prefix) + `(\d+)\.(.+)$`),
		placeholder: identity_store.PlaceholderPattern(cfg.Prefix),
		nameFields:  names,
		log:         cfg.Logger,
	}
}

// fold builds a fresh Caser each call; Casers keep state.
func fold(s string) string {
	return cases.Fold().String(s)
}

// IsNameField reports whether field is one of the recognized name spellings.
func (p *Parser) IsNameField(field string) bool {
	_, ok := p.nameFields[fold(strings.TrimSpace(field))]
	return ok
}

type slotRecord struct {
	ordinal int
	name    string
	fields  identity_store.Fields
}

// Parse never fails. Unscoped keys reject only themselves: they are never
// attached to a slot, and the well-formed slots are still returned.
func (p *Parser) Parse(payload Payload, lookup PositionLookup) Result {
	var res Result
	var order []*slotRecord
	slots := map[int]*slotRecord{}

	for _, kv := range payload {
		m := p.slot.FindStringSubmatch(kv.Key)
		if m == nil {
			res.Unscoped = append(res.Unscoped, kv.Key)
			continue
		}
		ordinal, err := strconv.Atoi(m[1])
		if err != nil {
			res.Unscoped = append(res.Unscoped, kv.Key)
			continue
		}
		rec, ok := slots[ordinal]
		if !ok {
			rec = &slotRecord{ordinal: ordinal}
			slots[ordinal] = rec
			order = append(order, rec)
		}

		field := m[2]
		if p.IsNameField(field) {
			if name := strings.TrimSpace(kv.Value.String()); name != "" {
				rec.name = name
			}
			continue
		}
		rec.fields.Set(field, kv.Value)
	}

	if len(res.Unscoped) > 0 {
		p.log.Warn("Extraction payload has keys without a slot prefix; they are ignored",
			logger.StringField("prefix", p.prefix),
			logger.StringField("keys", strings.Join(res.Unscoped, ",")))
	}

	for _, rec := range order {
		name := rec.name
		if name == "" && lookup != nil {
			name, _ = lookup.LookupByPosition(rec.ordinal)
		}
		if name == "" {
			res.Unresolved = append(res.Unresolved, rec.ordinal)
			p.log.Debug("Dropping unresolvable slot", logger.IntField("slot", rec.ordinal))
			continue
		}
		if p.placeholder.MatchString(name) {
			res.Placeholders = append(res.Placeholders, name)
			p.log.Debug("Dropping placeholder name",
				logger.IntField("slot", rec.ordinal), logger.StringField("name", name))
			continue
		}
		res.Candidates = append(res.Candidates, identity_store.Candidate{Name: name, Fields: rec.fields})
	}
	return res
}
