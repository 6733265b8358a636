package identity_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"testing"

	"github.com/lewisedginton/npc_registry/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bind(t, "source")
	_, err := f.store.ApplyExtraction(ctx, []Candidate{
		{Name: "Mira", Fields: FieldsOf("mood", "calm", "age", 31)},
		{Name: "Tomas", Fields: FieldsOf("armed", true)},
	}, TurnContext{MessageID: "m9", ChatID: "source"})
	require.NoError(t, err)
	exported, err := f.store.ExportJSON()
	require.NoError(t, err)

	f.bind(t, "target")
	f.events.reset()
	n, err := f.store.ImportDocument(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []notify.EventType{notify.StoreSaved, notify.StoreReloaded}, f.events.types())

	again, err := f.store.ExportJSON()
	require.NoError(t, err)
	assert.JSONEq(t, string(exported), string(again))

	// field order survives the trip
	mira, ok := f.store.Get("npc_0001")
	require.True(t, ok)
	assert.Equal(t, []string{"mood", "age"}, mira.Fields.Keys())
}

func TestImportRebuildsMissingCounters(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "chat")

	n, err := f.store.ImportDocument(context.Background(), []byte(`{
		"npcs": {
			"npc_0004": {"name": "Mira", "fields": {"mood": "calm"}, "lastMessageId": 1234},
			"npc_0002": {"name": "Tomas"}
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	doc := f.store.ExportDocument()
	assert.Equal(t, DocumentVersion, doc.Version)
	assert.Equal(t, 5, doc.NextID)
	assert.Equal(t, map[string]string{"Mira": "npc_0004", "Tomas": "npc_0002"}, doc.NameToID)
	assert.Equal(t, Ref("1234"), doc.NPCs["npc_0004"].LastMessageID)
	assert.Equal(t, "npc_0004", doc.NPCs["npc_0004"].ID)
}

func TestImportAcceptsJSON5(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "chat")

	n, err := f.store.ImportDocument(context.Background(), []byte(`{
		// hand edited
		npcs: {
			npc_0001: {name: 'Mira', fields: {mood: 'calm',},},
		},
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	e, ok := f.store.Get("npc_0001")
	require.True(t, ok)
	assert.Equal(t, "Mira", e.Name)
	mood, _ := e.Fields.Get("mood")
	assert.Equal(t, "calm", mood.String())
}

func TestImportRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not an object", input: `[1,2,3]`},
		{name: "scalar", input: `"npcs"`},
		{name: "missing npcs", input: `{"version":1,"nextId":3}`},
		{name: "npcs is a list", input: `{"npcs":[]}`},
		{name: "npcs is null", input: `{"npcs":null}`},
		{name: "garbage", input: `{{{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bind(t, "chat")
			f.store.Ensure("Keep")
			sets := f.docs.sets

			_, err := f.store.ImportDocument(context.Background(), []byte(tt.input))
			require.ErrorIs(t, err, ErrInvalidDocument)
			assert.Equal(t, 1, f.store.Len())
			assert.Equal(t, sets, f.docs.sets)
		})
	}
}

func TestImportPersistFailure(t *testing.T) {
	f := newFixture(t)
	f.bind(t, "chat")
	f.docs.failSet = errDiskFull
	f.events.reset()

	n, err := f.store.ImportDocument(context.Background(), []byte(`{"npcs":{"npc_0001":{"name":"Mira"}}}`))
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.Len())
	assert.NotContains(t, f.events.types(), notify.StoreReloaded)
}
