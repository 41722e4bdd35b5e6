package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmoji(t *testing.T) {
	assert.Equal(t, "👍", NormalizeEmoji(":thumbsup:"))
	assert.Equal(t, "👍", NormalizeEmoji("👍"))
	assert.Equal(t, ":not-an-emoji:", NormalizeEmoji(":not-an-emoji:"))
}

func TestMessageValidate(t *testing.T) {
	var verr *ValidationError

	err := Message{IssuerID: "u1"}.Validate()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "content", verr.Field)

	err = Message{Content: "hi"}.Validate()
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "issuer_id", verr.Field)

	require.NoError(t, Message{Content: "hi", IssuerID: "u1"}.Validate())
}

func TestMessageWithDefaults(t *testing.T) {
	m := Message{Content: "hi", IssuerID: "u1"}.WithDefaults()
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.Timestamp.IsZero())
	assert.NotNil(t, m.Reacts)

	other := Message{Content: "hi", IssuerID: "u1"}.WithDefaults()
	assert.NotEqual(t, m.ID, other.ID, "ids must be generated per message")

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	kept := Message{ID: "m1", Content: "hi", IssuerID: "u1", Timestamp: ts}.WithDefaults()
	assert.Equal(t, "m1", kept.ID)
	assert.Equal(t, ts, kept.Timestamp)
}

func TestApplyReactReplacesSameIssuer(t *testing.T) {
	m := Message{Reacts: []React{
		{Emoji: "👍", IssuerID: "u1"},
		{Emoji: "🎉", IssuerID: "u2"},
		{Emoji: "😀", IssuerID: "u3"},
	}}

	m = m.ApplyReact(React{Emoji: "❤️", IssuerID: "u1"})
	assert.Equal(t, []React{
		{Emoji: "🎉", IssuerID: "u2"},
		{Emoji: "😀", IssuerID: "u3"},
		{Emoji: "❤️", IssuerID: "u1"},
	}, m.Reacts)
}

func TestMetadataPatchPreservesUnsetFields(t *testing.T) {
	id := "ABC123"
	current := ConversationMetadata{ID: &id, Name: "Y", IsLocked: true}

	name := "X"
	merged, err := MetadataPatch{Name: &name}.Apply(current)
	require.NoError(t, err)
	assert.Equal(t, ConversationMetadata{ID: &id, Name: "X", IsLocked: true}, merged)
}

func TestMetadataPatchRejectsIDChange(t *testing.T) {
	id := "ABC123"
	other := "ZZZ999"
	_, err := MetadataPatch{ID: &other}.Apply(ConversationMetadata{ID: &id})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "id", verr.Field)
}

func TestParseMetadataPatch(t *testing.T) {
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"name":"X","is_locked":false}`), &raw))

	p, err := ParseMetadataPatch(raw)
	require.NoError(t, err)
	require.NotNil(t, p.Name)
	require.NotNil(t, p.IsLocked)
	assert.Equal(t, "X", *p.Name)
	assert.False(t, *p.IsLocked)
	assert.Nil(t, p.ID)

	var bad map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"is_locked":"yes"}`), &bad))
	_, err = ParseMetadataPatch(bad)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "is_locked", verr.Field)
}

func TestParseMetadataPatchRejectsNull(t *testing.T) {
	for _, body := range []string{`{"is_locked":null}`, `{"name": null}`, `{"id":null}`} {
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(body), &raw))
		_, err := ParseMetadataPatch(raw)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), body)
	}

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"is_locked":null,"name":null}`), &raw))
	p, err := ParseMetadataPatch(raw)
	require.Error(t, err)
	assert.True(t, p.IsEmpty())
}

func TestDefaultMetadata(t *testing.T) {
	md := DefaultMetadata()
	assert.Nil(t, md.ID)
	assert.Equal(t, "", md.Name)
	assert.True(t, md.IsLocked)
}
