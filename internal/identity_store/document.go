package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DocumentVersion is the only persisted format version.
const DocumentVersion = 1

const idPrefix = "npc_"

// Ref is an identifier that older documents may have stored as a number.
type Ref string

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
	default:
		*r = Ref(data)
	}
	return nil
}

// Entity is one resolved NPC. Timestamps are Unix milliseconds.
type Entity struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Fields        Fields `json:"fields"`
	AppearCount   int    `json:"appearCount"`
	LastSeen      int64  `json:"lastSeen"`
	LastMessageID Ref    `json:"lastMessageId,omitempty"`
	LastChatID    Ref    `json:"lastChatId,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
	UpdatedAt     int64  `json:"updatedAt"`
}

func (e Entity) clone() Entity {
	e.Fields = e.Fields.Clone()
	return e
}

// Document is the unit of persistence: every entity of one session.
type Document struct {
	Version  int                `json:"version"`
	NextID   int                `json:"nextId"`
	NameToID map[string]string  `json:"nameToId"`
	NPCs     map[string]*Entity `json:"npcs"`
}

// NewDocument returns an empty version 1 document.
func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		NextID:   1,
		NameToID: map[string]string{},
		NPCs:     map[string]*Entity{},
	}
}

// Clone returns a deep copy.
func (d *Document) Clone() Document {
	out := Document{
		Version:  d.Version,
		NextID:   d.NextID,
		NameToID: make(map[string]string, len(d.NameToID)),
		NPCs:     make(map[string]*Entity, len(d.NPCs)),
	}
	for k, v := range d.NameToID {
		out.NameToID[k] = v
	}
	for id, e := range d.NPCs {
		c := e.clone()
		out.NPCs[id] = &c
	}
	return out
}

// formatID renders the n-th id, zero padded to at least four digits.
func formatID(n int) string {
	return fmt.Sprintf("%s%04d", idPrefix, n)
}

// idNumber extracts the numeric suffix of an id.
func idNumber(id string) (int, bool) {
	digits, ok := strings.CutPrefix(id, idPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// idLess orders ids by numeric suffix. Ids without one sort last, by text.
func idLess(a, b string) bool {
	na, oka := idNumber(a)
	nb, okb := idNumber(b)
	switch {
	case oka && okb:
		if na != nb {
			return na < nb
		}
		return a < b
	case oka != okb:
		return oka
	default:
		return a < b
	}
}

// orderedIDs returns every entity id in ascending id order.
func (d *Document) orderedIDs() []string {
	ids := make([]string, 0, len(d.NPCs))
	for id := range d.NPCs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })
	return ids
}

// repairReport counts what repair changed.
type repairReport struct {
	droppedIndex int
	addedIndex   int
	nextIDRaised bool
}

func (r repairReport) changed() bool {
	return r.droppedIndex > 0 || r.addedIndex > 0 || r.nextIDRaised
}

// repair restores the document invariants after a load or import: nil
// maps become empty, entity ids match their keys, name index entries that
// point at a missing entity or at an entity with a different name are
// dropped, every entity name gets an index entry (the lowest id wins on
// duplicate names) and nextId moves past the largest id in use.
func (d *Document) repair() repairReport {
	var report repairReport
	if d.Version == 0 {
		d.Version = DocumentVersion
	}
	if d.NameToID == nil {
		d.NameToID = map[string]string{}
	}
	if d.NPCs == nil {
		d.NPCs = map[string]*Entity{}
	}

	for id, e := range d.NPCs {
		if e == nil {
			delete(d.NPCs, id)
			continue
		}
		e.ID = id
	}

	for name, id := range d.NameToID {
		e, ok := d.NPCs[id]
		if !ok || e.Name != name {
			delete(d.NameToID, name)
			report.droppedIndex++
		}
	}

	maxID := 0
	for _, id := range d.orderedIDs() {
		e := d.NPCs[id]
		if _, ok := d.NameToID[e.Name]; !ok {
			d.NameToID[e.Name] = id
			report.addedIndex++
		}
		if n, ok := idNumber(id); ok && n > maxID {
			maxID = n
		}
	}

	if d.NextID <= maxID {
		d.NextID = maxID + 1
		report.nextIDRaised = true
	}
	if d.NextID < 1 {
		d.NextID = 1
	}
	return report
}
