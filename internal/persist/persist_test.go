package persist

import (
	"context"
	"errors"
	"testing"

	"dsatutor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollection() models.Collection {
	return models.Collection{Sessions: []models.ChatSession{
		{
			ID:    "b",
			Title: "Big O basics",
			Messages: []models.Message{
				{Role: models.RoleUser, Content: "Explain Big O"},
				{Role: models.RoleModel, Content: "Big O notation \"describes\" growth\n```go\nfor {}\n```"},
			},
			LastUpdated: 1_700_000_000_500,
		},
		{ID: "a", Title: models.DefaultTitle, LastUpdated: 1_700_000_000_000},
	}}
}

func TestEncodeRoundTripIsByteIdentical(t *testing.T) {
	first, err := Encode(sampleCollection())
	require.NoError(t, err)

	decoded, err := Decode(first)
	require.NoError(t, err)
	second, err := Encode(decoded)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, sampleCollection().Sessions[0], decoded.Sessions[0])
}

func TestEncodeWireLayout(t *testing.T) {
	data, err := Encode(models.Collection{Sessions: []models.ChatSession{{ID: "x", Title: "t", LastUpdated: 7}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessions":[{"id":"x","title":"t","messages":[],"isLoading":false,"lastUpdated":7}]}`, string(data))

	empty, err := Encode(models.Collection{})
	require.NoError(t, err)
	assert.Equal(t, `{"sessions":[]}`, string(empty))
}

func TestDecodeLegacyArray(t *testing.T) {
	c, err := Decode([]byte(` [{"id":"s1","title":"Hash maps","messages":[{"role":"user","content":"How does a hash map work?"}],"isLoading":false,"lastUpdated":42}]`))
	require.NoError(t, err)
	require.Len(t, c.Sessions, 1)
	assert.Equal(t, "Hash maps", c.Sessions[0].Title)
	assert.Equal(t, int64(42), c.Sessions[0].LastUpdated)
}

func TestDecodeRejectsCorruptData(t *testing.T) {
	cases := map[string]string{
		"garbage":      "not json",
		"truncated":    `{"sessions":[{"id":"a"`,
		"empty":        "   ",
		"missing id":   `{"sessions":[{"title":"x"}]}`,
		"duplicate id": `{"sessions":[{"id":"a"},{"id":"a"}]}`,
		"bad role":     `{"sessions":[{"id":"a","messages":[{"role":"system","content":"x"}]}]}`,
		"scalar":       `42`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestAdapterLoadFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewAdapter(kv, "")
	assert.Equal(t, DefaultKey, a.Key())

	assert.Empty(t, a.Load(ctx).Sessions, "absent key")

	require.NoError(t, kv.Set(ctx, DefaultKey, "{{{"))
	assert.Empty(t, a.Load(ctx).Sessions, "corrupt record")

	kv.SetErr(errors.New("disk gone"))
	assert.Empty(t, a.Load(ctx).Sessions, "backend error")
}

func TestAdapterSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewAdapter(kv, "chats")

	a.Save(ctx, sampleCollection())
	loaded := a.Load(ctx)
	require.Len(t, loaded.Sessions, 2)
	assert.Equal(t, "b", loaded.Sessions[0].ID)

	raw, found, err := kv.Get(ctx, "chats")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, raw, `"lastUpdated":1700000000500`)
}

func TestAdapterSaveFailureKeepsPreviousRecord(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewAdapter(kv, "")
	a.Save(ctx, sampleCollection())

	kv.SetErr(errors.New("read-only"))
	a.Save(ctx, models.Collection{})
	kv.SetErr(nil)

	assert.Len(t, a.Load(ctx).Sessions, 2)
}

func TestAdapterClear(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	a := NewAdapter(kv, "chats")
	a.Save(ctx, sampleCollection())

	require.NoError(t, a.Clear(ctx))
	assert.Empty(t, a.Load(ctx).Sessions)
	require.NoError(t, a.Clear(ctx), "clearing a missing record")

	kv.SetErr(errors.New("read-only"))
	assert.Error(t, a.Clear(ctx))
}
