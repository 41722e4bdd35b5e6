// Package storetest holds the behavioural contract every ConversationStore
// backend must satisfy. Backend packages run it from their own tests.
package storetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for the conversation id.
type Factory func(t *testing.T, conversationID string) registrystore.ConversationStore

// Run executes the contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, ctx context.Context, s registrystore.ConversationStore)
	}{
		{"EmptyStore", testEmptyStore},
		{"AddMessageAssignsDefaults", testAddMessageAssignsDefaults},
		{"AddMessageKeepsClientFields", testAddMessageKeepsClientFields},
		{"AddMessageRejectsDuplicateID", testAddMessageRejectsDuplicateID},
		{"AddMessageRejectsInvalid", testAddMessageRejectsInvalid},
		{"WriteMessagesReplacesLog", testWriteMessagesReplacesLog},
		{"WriteMessagesRejectsDuplicateIDs", testWriteMessagesRejectsDuplicateIDs},
		{"TimestampsKeepMilliseconds", testTimestampsKeepMilliseconds},
		{"GetMessage", testGetMessage},
		{"EditMessage", testEditMessage},
		{"AddReactReplacesSameIssuer", testAddReactReplacesSameIssuer},
		{"AddReactNormalizesShortcode", testAddReactNormalizesShortcode},
		{"AddReactUnknownMessage", testAddReactUnknownMessage},
		{"AddUserIDIsIdempotent", testAddUserIDIsIdempotent},
		{"AddUserIDRequiresID", testAddUserIDRequiresID},
		{"WriteAndGetMetadata", testWriteAndGetMetadata},
		{"UpdateMetadataMergesFields", testUpdateMetadataMergesFields},
		{"UpdateMetadataRejectsInvalid", testUpdateMetadataRejectsInvalid},
	}
	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t, conversationID(i))
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			tc.fn(t, ctx, s)
		})
	}
}

func conversationID(i int) string {
	return "CONTRACT" + string(rune('A'+i%26))
}

// AssertSameMessage compares messages field by field, timestamps by instant.
func AssertSameMessage(t *testing.T, want, got model.Message) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.IssuerID, got.IssuerID)
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp: want %s, got %s", want.Timestamp, got.Timestamp)
	assert.Equal(t, want.Reacts, nilToEmpty(got.Reacts))
}

func nilToEmpty(r []model.React) []model.React {
	if r == nil {
		return []model.React{}
	}
	return r
}

func messageIDs(msgs []model.Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func testEmptyStore(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	ids, err := s.GetUsersIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	md, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMetadata(), md)
}

func testAddMessageAssignsDefaults(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	before := time.Now().Add(-time.Second)
	added, err := s.AddMessage(ctx, model.Message{Content: "hello", IssuerID: "u1"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.True(t, added.Timestamp.After(before))
	assert.NotNil(t, added.Reacts)

	second, err := s.AddMessage(ctx, model.Message{Content: "world", IssuerID: "u2"})
	require.NoError(t, err)
	assert.NotEqual(t, added.ID, second.ID)

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	AssertSameMessage(t, added, msgs[0])
	AssertSameMessage(t, second, msgs[1])
}

func testAddMessageKeepsClientFields(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	in := model.Message{ID: "m-1", Content: "hi", IssuerID: "u1", Timestamp: ts}
	added, err := s.AddMessage(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "m-1", added.ID)
	assert.True(t, ts.Equal(added.Timestamp))

	got, err := s.GetMessage(ctx, "m-1")
	require.NoError(t, err)
	AssertSameMessage(t, added, got)
}

func testAddMessageRejectsDuplicateID(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	_, err := s.AddMessage(ctx, model.Message{ID: "dup", Content: "first", IssuerID: "u1"})
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, model.Message{ID: "dup", Content: "second", IssuerID: "u1"})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first", msgs[0].Content)
}

func testAddMessageRejectsInvalid(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	_, err := s.AddMessage(ctx, model.Message{IssuerID: "u1"})
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "content", verr.Field)

	_, err = s.AddMessage(ctx, model.Message{Content: "x"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "issuer_id", verr.Field)

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testWriteMessagesReplacesLog(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	_, err := s.AddMessage(ctx, model.Message{ID: "old", Content: "old", IssuerID: "u1"})
	require.NoError(t, err)

	replacement := []model.Message{
		model.Message{ID: "b", Content: "B", IssuerID: "u1"}.WithDefaults(),
		model.Message{ID: "a", Content: "A", IssuerID: "u2", Reacts: []model.React{{Emoji: "🎉", IssuerID: "u1"}}}.WithDefaults(),
	}
	require.NoError(t, s.WriteMessages(ctx, replacement))

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"b", "a"}, messageIDs(msgs))
	AssertSameMessage(t, replacement[1], msgs[1])

	require.NoError(t, s.WriteMessages(ctx, []model.Message{}))
	msgs, err = s.GetMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testWriteMessagesRejectsDuplicateIDs(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	kept, err := s.AddMessage(ctx, model.Message{ID: "kept", Content: "kept", IssuerID: "u1"})
	require.NoError(t, err)

	err = s.WriteMessages(ctx, []model.Message{
		{ID: "a", Content: "A", IssuerID: "u1"},
		{ID: "x", Content: "first", IssuerID: "u1"},
		{ID: "x", Content: "second", IssuerID: "u2"},
	})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	err = s.WriteMessages(ctx, []model.Message{{ID: "a", IssuerID: "u1"}})
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	AssertSameMessage(t, kept, msgs[0])
}

func testTimestampsKeepMilliseconds(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 546123456, time.FixedZone("CEST", 2*60*60))
	want := time.Date(2024, 5, 1, 10, 30, 0, 546000000, time.UTC)

	added, err := s.AddMessage(ctx, model.Message{ID: "precise", Content: "hi", IssuerID: "u1", Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, want, added.Timestamp)

	got, err := s.GetMessage(ctx, "precise")
	require.NoError(t, err)
	assert.True(t, want.Equal(got.Timestamp), "got %s", got.Timestamp)
	assert.Equal(t, 546000000, got.Timestamp.Nanosecond())

	require.NoError(t, s.WriteMessages(ctx, []model.Message{{ID: "rewritten", Content: "hi", IssuerID: "u1", Timestamp: ts}}))
	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, want.Equal(msgs[0].Timestamp), "got %s", msgs[0].Timestamp)
	assert.Equal(t, 546000000, msgs[0].Timestamp.Nanosecond())
}

func testGetMessage(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	_, err := s.GetMessage(ctx, "missing")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)
}

func testEditMessage(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	added, err := s.AddMessage(ctx, model.Message{Content: "draft", IssuerID: "u1"})
	require.NoError(t, err)

	edited, err := s.EditMessage(ctx, added.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)
	assert.True(t, added.Timestamp.Equal(edited.Timestamp))

	got, err := s.GetMessage(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Content)

	_, err = s.EditMessage(ctx, added.ID, "")
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.EditMessage(ctx, "missing", "x")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func testAddReactReplacesSameIssuer(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	added, err := s.AddMessage(ctx, model.Message{Content: "react to me", IssuerID: "u1"})
	require.NoError(t, err)

	_, err = s.AddReact(ctx, model.React{Emoji: "😀", IssuerID: "u2"}, added.ID)
	require.NoError(t, err)
	_, err = s.AddReact(ctx, model.React{Emoji: "🎉", IssuerID: "u3"}, added.ID)
	require.NoError(t, err)
	updated, err := s.AddReact(ctx, model.React{Emoji: "🔥", IssuerID: "u2"}, added.ID)
	require.NoError(t, err)

	want := []model.React{{Emoji: "🎉", IssuerID: "u3"}, {Emoji: "🔥", IssuerID: "u2"}}
	assert.Equal(t, want, updated.Reacts)

	got, err := s.GetMessage(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, want, got.Reacts)
}

func testAddReactNormalizesShortcode(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	added, err := s.AddMessage(ctx, model.Message{Content: "nice", IssuerID: "u1"})
	require.NoError(t, err)

	updated, err := s.AddReact(ctx, model.React{Emoji: ":thumbsup:", IssuerID: "u2"}, added.ID)
	require.NoError(t, err)
	require.Len(t, updated.Reacts, 1)
	assert.Equal(t, "👍", updated.Reacts[0].Emoji)

	_, err = s.AddReact(ctx, model.React{Emoji: "", IssuerID: "u2"}, added.ID)
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)
}

func testAddReactUnknownMessage(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	added, err := s.AddMessage(ctx, model.Message{Content: "only", IssuerID: "u1"})
	require.NoError(t, err)

	_, err = s.AddReact(ctx, model.React{Emoji: "😀", IssuerID: "u2"}, "missing")
	var nf *registrystore.NotFoundError
	require.ErrorAs(t, err, &nf)

	msgs, err := s.GetMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	AssertSameMessage(t, added, msgs[0])
}

func testAddUserIDIsIdempotent(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	require.NoError(t, s.AddUserID(ctx, "u1"))
	require.NoError(t, s.AddUserID(ctx, "u2"))
	require.NoError(t, s.AddUserID(ctx, "u1"))

	ids, err := s.GetUsersIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, ids)
}

func testAddUserIDRequiresID(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	err := s.AddUserID(ctx, "")
	var inv *registrystore.InvalidArgumentError
	require.ErrorAs(t, err, &inv)
}

func testWriteAndGetMetadata(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	id := "CONV01"
	md := model.ConversationMetadata{ID: &id, Name: "General", IsLocked: false}
	require.NoError(t, s.WriteMetadata(ctx, md))

	got, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, md, got)

	md.Name = "Renamed"
	require.NoError(t, s.WriteMetadata(ctx, md))
	got, err = s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	bad := "not valid!"
	err = s.WriteMetadata(ctx, model.ConversationMetadata{ID: &bad})
	var verr *registrystore.ValidationError
	require.True(t, errors.As(err, &verr))
}

func testUpdateMetadataMergesFields(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	id := "CONV02"
	require.NoError(t, s.WriteMetadata(ctx, model.ConversationMetadata{ID: &id, Name: "Before", IsLocked: true}))

	unlocked := false
	merged, err := s.UpdateMetadata(ctx, model.MetadataPatch{IsLocked: &unlocked})
	require.NoError(t, err)
	assert.Equal(t, "Before", merged.Name)
	assert.False(t, merged.IsLocked)
	assert.Equal(t, id, merged.ConversationID())

	got, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, merged, got)
}

func testUpdateMetadataRejectsInvalid(t *testing.T, ctx context.Context, s registrystore.ConversationStore) {
	id := "CONV03"
	original := model.ConversationMetadata{ID: &id, Name: "Keep", IsLocked: true}
	require.NoError(t, s.WriteMetadata(ctx, original))

	long := strings.Repeat("x", model.MaxNameLength+1)
	_, err := s.UpdateMetadata(ctx, model.MetadataPatch{Name: &long})
	var verr *registrystore.ValidationError
	require.ErrorAs(t, err, &verr)

	other := "OTHER"
	_, err = s.UpdateMetadata(ctx, model.MetadataPatch{ID: &other})
	require.ErrorAs(t, err, &verr)

	got, err := s.GetMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, original, got)
}
