package metrics

import (
	"context"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/security"
)

// Wrap returns a ConversationStore that records StoreLatency for every operation.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.ConversationStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) WriteMessages(ctx context.Context, messages []model.Message) error {
	defer observe("write_messages", time.Now())
	return m.inner.WriteMessages(ctx, messages)
}

func (m *metricsStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	defer observe("add_message", time.Now())
	return m.inner.AddMessage(ctx, msg)
}

func (m *metricsStore) GetMessages(ctx context.Context) ([]model.Message, error) {
	defer observe("get_messages", time.Now())
	return m.inner.GetMessages(ctx)
}

func (m *metricsStore) GetMessage(ctx context.Context, messageID string) (model.Message, error) {
	defer observe("get_message", time.Now())
	return m.inner.GetMessage(ctx, messageID)
}

func (m *metricsStore) EditMessage(ctx context.Context, messageID string, content string) (model.Message, error) {
	defer observe("edit_message", time.Now())
	return m.inner.EditMessage(ctx, messageID, content)
}

func (m *metricsStore) AddReact(ctx context.Context, react model.React, messageID string) (model.Message, error) {
	defer observe("add_react", time.Now())
	return m.inner.AddReact(ctx, react, messageID)
}

func (m *metricsStore) GetUsersIDs(ctx context.Context) ([]string, error) {
	defer observe("get_users_ids", time.Now())
	return m.inner.GetUsersIDs(ctx)
}

func (m *metricsStore) AddUserID(ctx context.Context, userID string) error {
	defer observe("add_user_id", time.Now())
	return m.inner.AddUserID(ctx, userID)
}

func (m *metricsStore) GetMetadata(ctx context.Context) (model.ConversationMetadata, error) {
	defer observe("get_metadata", time.Now())
	return m.inner.GetMetadata(ctx)
}

func (m *metricsStore) WriteMetadata(ctx context.Context, metadata model.ConversationMetadata) error {
	defer observe("write_metadata", time.Now())
	return m.inner.WriteMetadata(ctx, metadata)
}

func (m *metricsStore) UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error) {
	defer observe("update_metadata", time.Now())
	return m.inner.UpdateMetadata(ctx, patch)
}

func (m *metricsStore) Close(ctx context.Context) error {
	return m.inner.Close(ctx)
}

var _ store.ConversationStore = (*metricsStore)(nil)
