// Package conversations owns the collection of conversation stores and the
// user directory, and persists both as a single index so the registry can be
// rebuilt after a restart.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	"github.com/bourracho/chat-registry/internal/plugin/store/cached"
	"github.com/bourracho/chat-registry/internal/plugin/store/locking"
	storemetrics "github.com/bourracho/chat-registry/internal/plugin/store/metrics"
	registrycache "github.com/bourracho/chat-registry/internal/registry/cache"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/security"
	"github.com/charmbracelet/log"
)

// Options configures a Registry.
type Options struct {
	// ID names the registry; its data lives under PersistenceDir/registry_id=<ID>.
	ID             string
	PersistenceDir string

	// StoreKind selects the backend of conversations created without a descriptor.
	StoreKind registrystore.Kind
	// MongoURL and MongoDatabase complete document_db descriptors that omit them.
	MongoURL      string
	MongoDatabase string

	// Cache fronts conversation metadata reads. Nil disables caching.
	Cache registrycache.MetadataCache

	// Config carries backend settings not kept in descriptors, such as
	// document database credentials and timeouts. Stores opened under a
	// context without a config see this one.
	Config *config.Config
}

// OptionsFromConfig maps the process configuration onto registry options.
func OptionsFromConfig(cfg *config.Config, cache registrycache.MetadataCache) Options {
	return Options{
		ID:             cfg.RegistryID,
		PersistenceDir: cfg.PersistenceDir,
		StoreKind:      registrystore.Kind(cfg.StoreKind),
		MongoURL:       cfg.MongoURL,
		MongoDatabase:  cfg.MongoDatabase,
		Cache:          cache,
		Config:         cfg,
	}
}

// Registry is the only entry point callers use: it resolves conversation ids
// to stores and keeps the user directory.
type Registry struct {
	opts      Options
	dir       string
	indexPath string

	// mu guards the maps below and serializes index persistence.
	mu          sync.RWMutex
	stores      map[string]registrystore.ConversationStore
	descriptors map[string]registrystore.Descriptor
	users       map[string]model.User
}

// Open loads the registry from its index, or writes an empty index when none
// exists. Every store is reconstructed from its descriptor before Open returns.
func Open(ctx context.Context, opts Options) (*Registry, error) {
	if err := registrystore.Required("registry_id", opts.ID); err != nil {
		return nil, err
	}
	if opts.StoreKind == "" {
		opts.StoreKind = registrystore.KindFile
	}
	dir := filepath.Join(opts.PersistenceDir, "registry_id="+opts.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	r := &Registry{
		opts:        opts,
		dir:         dir,
		indexPath:   filepath.Join(dir, IndexFileName),
		stores:      map[string]registrystore.ConversationStore{},
		descriptors: map[string]registrystore.Descriptor{},
		users:       map[string]model.User{},
	}

	idx, found, err := ReadIndex(r.indexPath)
	if err != nil {
		return nil, err
	}
	if !found {
		log.Info("Creating conversation registry", "registryId", opts.ID, "path", r.indexPath)
		if err := WriteIndex(r.indexPath, NewIndex(opts.ID)); err != nil {
			return nil, err
		}
		return r, nil
	}
	if idx.ID != "" && idx.ID != opts.ID {
		return nil, fmt.Errorf("registry index %s belongs to registry %q", r.indexPath, idx.ID)
	}

	log.Info("Reloading conversation registry", "registryId", opts.ID, "conversations", len(idx.Descriptors), "users", len(idx.Users))
	for _, cid := range sortedKeys(idx.Descriptors) {
		d := idx.Descriptors[cid]
		backend, err := registrystore.Open(r.storeContext(ctx), d)
		if err != nil {
			_ = r.Close(ctx)
			return nil, fmt.Errorf("reload conversation %s: %w", cid, err)
		}
		r.stores[cid] = r.wrap(cid, backend)
		r.descriptors[cid] = d
	}
	r.users = idx.Users
	r.updateGauges()
	return r, nil
}

// ID returns the registry id.
func (r *Registry) ID() string { return r.opts.ID }

// Dir returns the directory holding the index and file-backed conversations.
func (r *Registry) Dir() string { return r.dir }

// wrap composes the store decorators, outermost first: metrics, locking, cache.
func (r *Registry) wrap(conversationID string, backend registrystore.ConversationStore) registrystore.ConversationStore {
	s := cached.Wrap(backend, r.opts.Cache, registrycache.MetadataKey(r.opts.ID, conversationID))
	return storemetrics.Wrap(locking.Wrap(s))
}

// persistLocked writes the index. Callers hold r.mu for writing.
func (r *Registry) persistLocked() error {
	idx := NewIndex(r.opts.ID)
	for cid, d := range r.descriptors {
		idx.Descriptors[cid] = d
	}
	for uid, u := range r.users {
		idx.Users[uid] = u
	}
	if err := WriteIndex(r.indexPath, idx); err != nil {
		return fmt.Errorf("persist registry index: %w", err)
	}
	r.updateGauges()
	return nil
}

func (r *Registry) updateGauges() {
	security.SetGauge(security.RegistryConversations, float64(len(r.stores)))
	security.SetGauge(security.RegistryUsers, float64(len(r.users)))
}

// store resolves a conversation id.
func (r *Registry) store(conversationID string) (registrystore.ConversationStore, error) {
	if err := registrystore.Required("conversation_id", conversationID); err != nil {
		return nil, err
	}
	r.mu.RLock()
	s, ok := r.stores[conversationID]
	r.mu.RUnlock()
	if !ok {
		return nil, &registrystore.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return s, nil
}

// --- Users ---

// RegisterUser adds user to the directory. Registering an id twice is a
// logged no-op and the first record is kept.
func (r *Registry) RegisterUser(_ context.Context, user model.User) error {
	if err := registrystore.Required("user_id", user.ID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		log.Warn("User already registered", "registryId", r.opts.ID, "userId", user.ID)
		return nil
	}
	r.users[user.ID] = user
	if err := r.persistLocked(); err != nil {
		delete(r.users, user.ID)
		return err
	}
	log.Info("User registered", "registryId", r.opts.ID, "userId", user.ID)
	return nil
}

// GetUser returns a registered user.
func (r *Registry) GetUser(_ context.Context, userID string) (model.User, error) {
	if err := registrystore.Required("user_id", userID); err != nil {
		return model.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return model.User{}, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	return u, nil
}

// ListUsers returns the users with the given ids, in that order, skipping
// unknown ids. With no ids every registered user is returned, ordered by id.
func (r *Registry) ListUsers(_ context.Context, userIDs ...string) []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(userIDs) == 0 {
		userIDs = sortedKeys(r.users)
	}
	out := make([]model.User, 0, len(userIDs))
	for _, id := range userIDs {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out
}

// SetUserAdmin changes the only mutable field of a user record.
func (r *Registry) SetUserAdmin(_ context.Context, userID string, isAdmin bool) (model.User, error) {
	if err := registrystore.Required("user_id", userID); err != nil {
		return model.User{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return model.User{}, &registrystore.NotFoundError{Resource: "user", ID: userID}
	}
	if u.IsAdmin == isAdmin {
		return u, nil
	}
	previous := u
	u.IsAdmin = isAdmin
	r.users[userID] = u
	if err := r.persistLocked(); err != nil {
		r.users[userID] = previous
		return model.User{}, err
	}
	log.Info("User admin flag changed", "registryId", r.opts.ID, "userId", userID, "isAdmin", isAdmin)
	return u, nil
}

// --- Conversations ---

// CreateConversation registers a new conversation owned by userID and returns
// its id. A nil descriptor selects the configured default backend; descriptor
// fields left empty are completed from the registry options.
func (r *Registry) CreateConversation(ctx context.Context, userID string, metadata model.ConversationMetadata, descriptor *registrystore.Descriptor) (string, error) {
	if err := registrystore.Required("user_id", userID); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cid := metadata.ConversationID()
	if cid == "" {
		generated, err := newConversationID()
		if err != nil {
			return "", err
		}
		cid = generated
	}
	metadata.ID = &cid
	if err := metadata.Validate(); err != nil {
		return "", err
	}
	if _, exists := r.stores[cid]; exists {
		return "", &registrystore.ConflictError{Message: fmt.Sprintf("conversation %s already exists", cid)}
	}

	d, err := r.completeDescriptor(descriptor, cid)
	if err != nil {
		return "", err
	}
	backend, err := registrystore.Open(r.storeContext(ctx), d)
	if err != nil {
		return "", err
	}
	s := r.wrap(cid, backend)
	if err := s.WriteMetadata(ctx, metadata); err != nil {
		_ = s.Close(ctx)
		return "", err
	}
	if err := s.AddUserID(ctx, userID); err != nil {
		_ = s.Close(ctx)
		return "", err
	}

	r.stores[cid] = s
	r.descriptors[cid] = d
	if err := r.persistLocked(); err != nil {
		delete(r.stores, cid)
		delete(r.descriptors, cid)
		_ = s.Close(ctx)
		return "", err
	}
	log.Info("Conversation created", "registryId", r.opts.ID, "conversationId", cid, "store", d.Type, "userId", userID)
	return cid, nil
}

// storeContext attaches the registry's config to ctx unless ctx already
// carries one. Request contexts do not.
func (r *Registry) storeContext(ctx context.Context) context.Context {
	if r.opts.Config == nil || config.FromContext(ctx) != nil {
		return ctx
	}
	return config.WithContext(ctx, r.opts.Config)
}

func (r *Registry) completeDescriptor(descriptor *registrystore.Descriptor, conversationID string) (registrystore.Descriptor, error) {
	var d registrystore.Descriptor
	if descriptor != nil {
		d = *descriptor
	} else {
		d.Type = r.opts.StoreKind
	}
	d.ConversationID = conversationID
	switch d.Type {
	case registrystore.KindFile:
		if d.Directory == "" {
			d.Directory = filepath.Join(r.dir, conversationID)
		}
	case registrystore.KindDocumentDB:
		if d.ConnectionURI == "" {
			d.ConnectionURI = r.opts.MongoURL
		}
		if d.Database == "" {
			d.Database = r.opts.MongoDatabase
		}
	}
	if err := d.Validate(); err != nil {
		return registrystore.Descriptor{}, err
	}
	return d, nil
}

// JoinConversation adds userID to the conversation's members.
func (r *Registry) JoinConversation(ctx context.Context, userID string, conversationID string) error {
	if err := registrystore.Required("user_id", userID); err != nil {
		return err
	}
	return r.AddUserIDToConversation(ctx, userID, conversationID)
}

// AddUserIDToConversation adds a member; adding an existing member is a no-op.
func (r *Registry) AddUserIDToConversation(ctx context.Context, userID string, conversationID string) error {
	s, err := r.store(conversationID)
	if err != nil {
		return err
	}
	return s.AddUserID(ctx, userID)
}

// ListConversations returns the metadata of every conversation userID is a
// member of, ordered by conversation id.
func (r *Registry) ListConversations(ctx context.Context, userID string) ([]model.ConversationMetadata, error) {
	if err := registrystore.Required("user_id", userID); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := sortedKeys(r.stores)
	stores := make([]registrystore.ConversationStore, len(ids))
	for i, id := range ids {
		stores[i] = r.stores[id]
	}
	r.mu.RUnlock()

	out := []model.ConversationMetadata{}
	for i, s := range stores {
		members, err := s.GetUsersIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", ids[i], err)
		}
		if !contains(members, userID) {
			continue
		}
		md, err := s.GetMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("load metadata of %s: %w", ids[i], err)
		}
		out = append(out, md)
	}
	log.Debug("Listed conversations", "userId", userID, "count", len(out))
	return out, nil
}

// ConversationIDs returns every registered conversation id in sorted order.
func (r *Registry) ConversationIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.stores)
}

// Descriptor returns the backend descriptor of a conversation.
func (r *Registry) Descriptor(conversationID string) (registrystore.Descriptor, error) {
	if _, err := r.store(conversationID); err != nil {
		return registrystore.Descriptor{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptors[conversationID], nil
}

// --- Per-conversation operations ---

func (r *Registry) AddMessage(ctx context.Context, msg model.Message, conversationID string) (model.Message, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	return s.AddMessage(ctx, msg)
}

func (r *Registry) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return nil, err
	}
	return s.GetMessages(ctx)
}

func (r *Registry) GetMessage(ctx context.Context, conversationID string, messageID string) (model.Message, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if err := registrystore.Required("message_id", messageID); err != nil {
		return model.Message{}, err
	}
	return s.GetMessage(ctx, messageID)
}

func (r *Registry) EditMessage(ctx context.Context, conversationID string, messageID string, content string) (model.Message, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if err := registrystore.Required("message_id", messageID); err != nil {
		return model.Message{}, err
	}
	return s.EditMessage(ctx, messageID, content)
}

func (r *Registry) AddReact(ctx context.Context, react model.React, conversationID string, messageID string) (model.Message, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if err := registrystore.Required("message_id", messageID); err != nil {
		return model.Message{}, err
	}
	return s.AddReact(ctx, react, messageID)
}

func (r *Registry) GetMetadata(ctx context.Context, conversationID string) (model.ConversationMetadata, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	return s.GetMetadata(ctx)
}

func (r *Registry) UpdateMetadata(ctx context.Context, conversationID string, patch model.MetadataPatch) (model.ConversationMetadata, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return model.ConversationMetadata{}, err
	}
	return s.UpdateMetadata(ctx, patch)
}

// GetUsersIDs returns the conversation's member ids in join order.
func (r *Registry) GetUsersIDs(ctx context.Context, conversationID string) ([]string, error) {
	s, err := r.store(conversationID)
	if err != nil {
		return nil, err
	}
	return s.GetUsersIDs(ctx)
}

// IsMember reports whether userID belongs to the conversation.
func (r *Registry) IsMember(ctx context.Context, conversationID string, userID string) (bool, error) {
	ids, err := r.GetUsersIDs(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return contains(ids, userID), nil
}

// GetUsers returns the directory records of the conversation's members in
// join order. Members that never registered are skipped.
func (r *Registry) GetUsers(ctx context.Context, conversationID string) ([]model.User, error) {
	ids, err := r.GetUsersIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// Close releases every store's backend resources.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for cid, s := range r.stores {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close conversation %s: %w", cid, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
