package prefixed_uuid

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndParse(t *testing.T) {
	id := New("turn")
	assert.True(t, strings.HasPrefix(id.String(), "turn-"))
	assert.False(t, id.IsZero())

	parsed, err := Parse(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "turn", "-" + uuid.NewString(), "turn-nope"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestJSON(t *testing.T) {
	type wrapper struct {
		ID PrefixedUUID `json:"id"`
	}
	in := wrapper{ID: New("turn")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"turn-`)

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"id":42}`), &out))
	assert.True(t, PrefixedUUID{}.IsZero())
}
