// Package prefixed_uuid provides UUIDs carrying a short type prefix, such as
// "turn-5f0c...". The prefix never contains a hyphen.
package prefixed_uuid //nolint:revive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PrefixedUUID is a UUID with a prefix string.
type PrefixedUUID struct {
	Prefix string
	UUID   uuid.UUID
}

// New creates a PrefixedUUID with a random UUID.
func New(prefix string) PrefixedUUID {
	return PrefixedUUID{Prefix: prefix, UUID: uuid.New()}
}

// Parse reads the "prefix-uuid" form.
func Parse(s string) (PrefixedUUID, error) {
	prefix, rest, ok := strings.Cut(s, "-")
	if !ok || prefix == "" {
		return PrefixedUUID{}, fmt.Errorf("invalid prefixed UUID format: %q", s)
	}
	id, err := uuid.Parse(rest)
	if err != nil {
		return PrefixedUUID{}, fmt.Errorf("invalid UUID: %w", err)
	}
	return PrefixedUUID{Prefix: prefix, UUID: id}, nil
}

func (p PrefixedUUID) String() string {
	return p.Prefix + "-" + p.UUID.String()
}

// IsZero reports whether p is the zero value.
func (p PrefixedUUID) IsZero() bool {
	return p.Prefix == "" && p.UUID == uuid.Nil
}

func (p PrefixedUUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *PrefixedUUID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("prefixed UUID must be a JSON string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
