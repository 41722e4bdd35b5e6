package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bourracho/chat-registry/internal/model"
)

// ConversationStore owns one conversation's messages, membership and metadata.
// Every backend must produce observably identical results for every operation.
type ConversationStore interface {
	// Messages

	// WriteMessages replaces the entire message log.
	WriteMessages(ctx context.Context, messages []model.Message) error
	// AddMessage validates msg, assigns its id and timestamp when absent and appends it.
	AddMessage(ctx context.Context, msg model.Message) (model.Message, error)
	// GetMessages returns the log in insertion order; empty when nothing was written.
	GetMessages(ctx context.Context) ([]model.Message, error)
	GetMessage(ctx context.Context, messageID string) (model.Message, error)
	// EditMessage replaces the content of an existing message.
	EditMessage(ctx context.Context, messageID string, content string) (model.Message, error)
	// AddReact applies react to the message, replacing any earlier react from the same issuer.
	AddReact(ctx context.Context, react model.React, messageID string) (model.Message, error)

	// Membership

	GetUsersIDs(ctx context.Context) ([]string, error)
	// AddUserID is idempotent: adding a present id is a logged no-op.
	AddUserID(ctx context.Context, userID string) error

	// Metadata

	// GetMetadata returns model.DefaultMetadata() when nothing was written.
	GetMetadata(ctx context.Context) (model.ConversationMetadata, error)
	WriteMetadata(ctx context.Context, metadata model.ConversationMetadata) error
	// UpdateMetadata performs a read-merge-validate-write of the metadata.
	UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error)

	// Close releases backend resources held by the store.
	Close(ctx context.Context) error
}

// PrepareMessage validates msg and fills in defaults before first persistence.
// Timestamps are kept in UTC at millisecond precision, the finest every
// backend stores. The caller's reacts slice is never modified.
func PrepareMessage(msg model.Message) (model.Message, error) {
	if err := msg.Validate(); err != nil {
		return model.Message{}, err
	}
	msg = msg.WithDefaults()
	msg.Timestamp = msg.Timestamp.UTC().Truncate(time.Millisecond)
	reacts := make([]model.React, len(msg.Reacts))
	for i, r := range msg.Reacts {
		reacts[i] = r.Normalized()
	}
	msg.Reacts = reacts
	return msg, nil
}

// PrepareLog runs PrepareMessage over a full replacement log and rejects
// duplicate ids. Backends call it before touching storage so a rejected log
// leaves the previous one in place.
func PrepareLog(messages []model.Message) ([]model.Message, error) {
	out := make([]model.Message, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for i, m := range messages {
		prepared, err := PrepareMessage(m)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[prepared.ID]; dup {
			return nil, &ConflictError{Message: fmt.Sprintf("message %s appears more than once", prepared.ID)}
		}
		seen[prepared.ID] = struct{}{}
		out[i] = prepared
	}
	return out, nil
}

// PrepareReact validates and normalizes a react.
func PrepareReact(react model.React) (model.React, error) {
	if err := react.Validate(); err != nil {
		return model.React{}, err
	}
	return react.Normalized(), nil
}

// Loader creates a ConversationStore for the given descriptor.
type Loader func(ctx context.Context, d Descriptor) (ConversationStore, error)

// Plugin represents a store backend.
type Plugin struct {
	Kind   Kind
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store backend kinds.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = string(p.Kind)
	}
	return names
}

// Select returns the loader for the named store backend.
func Select(kind Kind) (Loader, error) {
	for _, p := range plugins {
		if p.Kind == kind {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", kind, Names())
}

// Open validates d and constructs its store with the matching backend.
func Open(ctx context.Context, d Descriptor) (ConversationStore, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	loader, err := Select(d.Type)
	if err != nil {
		return nil, err
	}
	return loader(ctx, d)
}
