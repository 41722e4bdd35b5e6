package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/tempfiles"
	"github.com/charmbracelet/log"
)

const (
	metadataFile = "metadata.json"
	usersIDsFile = "users_ids.json"
	messagesFile = "messages.json"
)

func init() {
	registrystore.Register(registrystore.Plugin{
		Kind: registrystore.KindFile,
		Loader: func(ctx context.Context, d registrystore.Descriptor) (registrystore.ConversationStore, error) {
			if registrystore.IsReadOnly(ctx) {
				return Existing(d.Directory, d.ConversationID)
			}
			return New(d.Directory, d.ConversationID)
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Store keeps one conversation in a dedicated directory holding three
// independently readable JSON artifacts. Every write replaces a whole artifact.
type Store struct {
	conversationID string
	dir            string
}

// New returns a store rooted at dir, creating the directory if needed.
func New(dir string, conversationID string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir %q: %w", dir, err)
	}
	log.Debug("Initialized file conversation store", "dir", dir, "conversationId", conversationID)
	return &Store{conversationID: conversationID, dir: dir}, nil
}

// Existing returns a store over a directory that must already exist.
func Existing(dir string, conversationID string) (*Store, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &registrystore.NotFoundError{Resource: "conversation directory", ID: dir}
	}
	if err != nil {
		return nil, fmt.Errorf("stat conversation dir %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("conversation dir %q is not a directory", dir)
	}
	return &Store{conversationID: conversationID, dir: dir}, nil
}

var _ registrystore.ConversationStore = (*Store)(nil)

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// readJSON decodes an artifact; found is false when it was never written.
func (s *Store) readJSON(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return tempfiles.ReplaceFile(s.path(name), data, 0o644)
}

// --- Messages ---

func (s *Store) WriteMessages(_ context.Context, messages []model.Message) error {
	messages, err := registrystore.PrepareLog(messages)
	if err != nil {
		return err
	}
	encoded := make([]string, len(messages))
	for i, m := range messages {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", m.ID, err)
		}
		encoded[i] = string(data)
	}
	return s.writeJSON(messagesFile, encoded)
}

func (s *Store) GetMessages(_ context.Context) ([]model.Message, error) {
	var encoded []string
	found, err := s.readJSON(messagesFile, &encoded)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Debug("No messages to fetch", "conversationId", s.conversationID)
		return []model.Message{}, nil
	}
	messages := make([]model.Message, len(encoded))
	for i, raw := range encoded {
		if err := json.Unmarshal([]byte(raw), &messages[i]); err != nil {
			return nil, fmt.Errorf("decode message %d: %w", i, err)
		}
		if messages[i].Reacts == nil {
			messages[i].Reacts = []model.React{}
		}
	}
	return messages, nil
}

func (s *Store) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	msg, err := registrystore.PrepareMessage(msg)
	if err != nil {
		return model.Message{}, err
	}
	messages, err := s.GetMessages(ctx)
	if err != nil {
		return model.Message{}, err
	}
	if indexOf(messages, msg.ID) >= 0 {
		return model.Message{}, &registrystore.ConflictError{Message: fmt.Sprintf("message %s already exists", msg.ID)}
	}
	if err := s.WriteMessages(ctx, append(messages, msg)); err != nil {
		return model.Message{}, err
	}
	log.Info("Added message", "conversationId", s.conversationID, "messageId", msg.ID)
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (model.Message, error) {
	messages, err := s.GetMessages(ctx)
	if err != nil {
		return model.Message{}, err
	}
	i := indexOf(messages, messageID)
	if i < 0 {
		return model.Message{}, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return messages[i], nil
}

func (s *Store) EditMessage(ctx context.Context, messageID string, content string) (model.Message, error) {
	if content == "" {
		return model.Message{}, &registrystore.ValidationError{Field: "content", Message: "is required"}
	}
	return s.updateMessage(ctx, messageID, func(m model.Message) model.Message {
		m.Content = content
		return m
	})
}

func (s *Store) AddReact(ctx context.Context, react model.React, messageID string) (model.Message, error) {
	react, err := registrystore.PrepareReact(react)
	if err != nil {
		return model.Message{}, err
	}
	msg, err := s.updateMessage(ctx, messageID, func(m model.Message) model.Message {
		return m.ApplyReact(react)
	})
	if err != nil {
		return model.Message{}, err
	}
	log.Info("Added react", "conversationId", s.conversationID, "messageId", messageID, "issuerId", react.IssuerID)
	return msg, nil
}

// updateMessage rewrites the whole log with fn applied to one message. The
// log is left untouched when the message does not exist.
func (s *Store) updateMessage(ctx context.Context, messageID string, fn func(model.Message) model.Message) (model.Message, error) {
	messages, err := s.GetMessages(ctx)
	if err != nil {
		return model.Message{}, err
	}
	i := indexOf(messages, messageID)
	if i < 0 {
		return model.Message{}, &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	messages[i] = fn(messages[i])
	if err := s.WriteMessages(ctx, messages); err != nil {
		return model.Message{}, err
	}
	return messages[i], nil
}

func indexOf(messages []model.Message, id string) int {
	for i, m := range messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// --- Membership ---

func (s *Store) GetUsersIDs(_ context.Context) ([]string, error) {
	var ids []string
	found, err := s.readJSON(usersIDsFile, &ids)
	if err != nil {
		return nil, err
	}
	if !found || ids == nil {
		log.Debug("No user IDs registered for conversation", "conversationId", s.conversationID)
		return []string{}, nil
	}
	return ids, nil
}

func (s *Store) AddUserID(ctx context.Context, userID string) error {
	if err := registrystore.Required("user_id", userID); err != nil {
		return err
	}
	ids, err := s.GetUsersIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == userID {
			log.Warn("User already member of conversation", "conversationId", s.conversationID, "userId", userID)
			return nil
		}
	}
	if err := s.writeJSON(usersIDsFile, append(ids, userID)); err != nil {
		return err
	}
	log.Info("Added user to conversation", "conversationId", s.conversationID, "userId", userID)
	return nil
}

// --- Metadata ---

func (s *Store) GetMetadata(_ context.Context) (model.ConversationMetadata, error) {
	md := model.DefaultMetadata()
	found, err := s.readJSON(metadataFile, &md)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	if !found {
		log.Debug("No metadata registered for conversation", "conversationId", s.conversationID)
		return model.DefaultMetadata(), nil
	}
	return md, nil
}

func (s *Store) WriteMetadata(_ context.Context, metadata model.ConversationMetadata) error {
	if err := metadata.Validate(); err != nil {
		return err
	}
	return s.writeJSON(metadataFile, metadata)
}

func (s *Store) UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error) {
	current, err := s.GetMetadata(ctx)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	merged, err := patch.Apply(current)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	if err := s.WriteMetadata(ctx, merged); err != nil {
		return model.ConversationMetadata{}, err
	}
	return merged, nil
}

func (s *Store) Close(context.Context) error { return nil }
