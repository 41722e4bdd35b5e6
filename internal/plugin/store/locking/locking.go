package locking

import (
	"context"
	"sync"

	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/registry/store"
)

// Wrap serializes mutations of one conversation. Backends rewrite whole
// artifacts on every write, so concurrent writers would otherwise lose updates.
// Reads share the lock with each other.
func Wrap(inner store.ConversationStore) store.ConversationStore {
	return &lockingStore{inner: inner}
}

type lockingStore struct {
	mu    sync.RWMutex
	inner store.ConversationStore
}

func (l *lockingStore) WriteMessages(ctx context.Context, messages []model.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.WriteMessages(ctx, messages)
}

func (l *lockingStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.AddMessage(ctx, msg)
}

func (l *lockingStore) GetMessages(ctx context.Context) ([]model.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.GetMessages(ctx)
}

func (l *lockingStore) GetMessage(ctx context.Context, messageID string) (model.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.GetMessage(ctx, messageID)
}

func (l *lockingStore) EditMessage(ctx context.Context, messageID string, content string) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.EditMessage(ctx, messageID, content)
}

func (l *lockingStore) AddReact(ctx context.Context, react model.React, messageID string) (model.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.AddReact(ctx, react, messageID)
}

func (l *lockingStore) GetUsersIDs(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.GetUsersIDs(ctx)
}

func (l *lockingStore) AddUserID(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.AddUserID(ctx, userID)
}

func (l *lockingStore) GetMetadata(ctx context.Context) (model.ConversationMetadata, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inner.GetMetadata(ctx)
}

func (l *lockingStore) WriteMetadata(ctx context.Context, metadata model.ConversationMetadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.WriteMetadata(ctx, metadata)
}

func (l *lockingStore) UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.UpdateMetadata(ctx, patch)
}

func (l *lockingStore) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Close(ctx)
}

var _ store.ConversationStore = (*lockingStore)(nil)
