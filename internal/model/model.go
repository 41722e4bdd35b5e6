package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kyokomi/emoji/v2"
)

// MaxNameLength bounds conversation names.
const MaxNameLength = 500

var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidationError indicates an entity that does not satisfy its schema.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// User is a registered chat participant.
type User struct {
	ID          string  `json:"id"                 bson:"id"`
	DisplayName string  `json:"display_name"       bson:"display_name"`
	Pseudo      *string `json:"pseudo,omitempty"   bson:"pseudo,omitempty"`
	Location    *string `json:"location,omitempty" bson:"location,omitempty"`
	IsAdmin     bool    `json:"is_admin"           bson:"is_admin"`
}

// React is a single user's reaction to a message.
type React struct {
	Emoji    string `json:"emoji"     bson:"emoji"`
	IssuerID string `json:"issuer_id" bson:"issuer_id"`
}

// NormalizeEmoji converts shortcodes such as ":thumbsup:" into their glyph.
// Glyphs and unknown shortcodes are returned unchanged.
func NormalizeEmoji(s string) string {
	return strings.TrimSpace(emoji.Sprint(strings.TrimSpace(s)))
}

// Normalized returns the react with its emoji in canonical glyph form.
func (r React) Normalized() React {
	r.Emoji = NormalizeEmoji(r.Emoji)
	return r
}

// Validate checks the react's required fields.
func (r React) Validate() error {
	if strings.TrimSpace(r.Emoji) == "" {
		return &ValidationError{Field: "emoji", Message: "is required"}
	}
	if r.IssuerID == "" {
		return &ValidationError{Field: "issuer_id", Message: "is required"}
	}
	return nil
}

// Message is a single entry of a conversation's log.
type Message struct {
	ID        string    `json:"id"        bson:"id"`
	Content   string    `json:"content"   bson:"content"`
	IssuerID  string    `json:"issuer_id" bson:"issuer_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Reacts    []React   `json:"reacts"    bson:"reacts"`
}

// Validate checks the message's required fields.
func (m Message) Validate() error {
	if m.Content == "" {
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if m.IssuerID == "" {
		return &ValidationError{Field: "issuer_id", Message: "is required"}
	}
	for _, r := range m.Reacts {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WithDefaults fills the id and timestamp when they are absent.
// Values that are already set are never replaced.
func (m Message) WithDefaults() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = Now()
	}
	if m.Reacts == nil {
		m.Reacts = []React{}
	}
	return m
}

// Now is the message clock: UTC at millisecond precision so every backend
// round-trips timestamps unchanged.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// ApplyReact replaces any react from the same issuer with r, appended last.
func (m Message) ApplyReact(r React) Message {
	reacts := make([]React, 0, len(m.Reacts)+1)
	for _, existing := range m.Reacts {
		if existing.IssuerID != r.IssuerID {
			reacts = append(reacts, existing)
		}
	}
	m.Reacts = append(reacts, r)
	return m
}

// ConversationMetadata describes a conversation.
type ConversationMetadata struct {
	ID       *string `json:"id"        bson:"id"`
	Name     string  `json:"name"      bson:"name"`
	IsLocked bool    `json:"is_locked" bson:"is_locked"`
}

// DefaultMetadata is the metadata of a conversation that never had any written.
func DefaultMetadata() ConversationMetadata {
	return ConversationMetadata{IsLocked: true}
}

// ConversationID returns the id or "" when unset.
func (m ConversationMetadata) ConversationID() string {
	if m.ID == nil {
		return ""
	}
	return *m.ID
}

// Validate checks the metadata shape.
func (m ConversationMetadata) Validate() error {
	if m.ID != nil && !conversationIDPattern.MatchString(*m.ID) {
		return &ValidationError{Field: "id", Message: "must be a non-empty alphanumeric identifier"}
	}
	if len(m.Name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "exceeds maximum length"}
	}
	return nil
}
