package store

import (
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareMessageLeavesCallerReacts(t *testing.T) {
	reacts := []model.React{{Emoji: ":thumbsup:", IssuerID: "u2"}}
	msg, err := PrepareMessage(model.Message{Content: "hi", IssuerID: "u1", Reacts: reacts})
	require.NoError(t, err)
	assert.Equal(t, "👍", msg.Reacts[0].Emoji)
	assert.Equal(t, ":thumbsup:", reacts[0].Emoji)
}

func TestPrepareMessageTruncatesTimestamp(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 999999999, time.UTC)
	msg, err := PrepareMessage(model.Message{Content: "hi", IssuerID: "u1", Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, 999000000, msg.Timestamp.Nanosecond())
}

func TestPrepareLog(t *testing.T) {
	out, err := PrepareLog([]model.Message{
		{ID: "a", Content: "A", IssuerID: "u1"},
		{Content: "B", IssuerID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.NotEmpty(t, out[1].ID)

	_, err = PrepareLog([]model.Message{
		{ID: "x", Content: "A", IssuerID: "u1"},
		{ID: "x", Content: "B", IssuerID: "u1"},
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = PrepareLog([]model.Message{{ID: "x", IssuerID: "u1"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)
}
