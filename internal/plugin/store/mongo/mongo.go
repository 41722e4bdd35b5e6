package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bourracho/chat-registry/internal/config"
	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/charmbracelet/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Kind: registrystore.KindDocumentDB,
		Loader: func(ctx context.Context, d registrystore.Descriptor) (registrystore.ConversationStore, error) {
			return Open(ctx, d)
		},
	})
}

const metadataDocID = "metadata"

// MongoStore keeps one conversation in three collections of a shared
// database: messages_<id>, users_<id> and metadata_<id>.
type MongoStore struct {
	conversationID string
	uri            string
	client         *mongo.Client
	db             *mongo.Database
	closeOnce      sync.Once
}

var _ registrystore.ConversationStore = (*MongoStore)(nil)

// Open connects (or reuses a pooled connection) to the descriptor's
// database and ensures the conversation's indexes exist. Index creation is
// skipped under a read-only context.
func Open(ctx context.Context, d registrystore.Descriptor) (*MongoStore, error) {
	if err := registrystore.Required("conversation_id", d.ConversationID); err != nil {
		return nil, err
	}
	client, err := pool.acquire(ctx, d.ConnectionURI, config.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	s := &MongoStore{
		conversationID: d.ConversationID,
		uri:            d.ConnectionURI,
		client:         client,
		db:             client.Database(d.Database),
	}
	if !registrystore.IsReadOnly(ctx) {
		if err := s.ensureIndexes(ctx); err != nil {
			_ = pool.release(ctx, d.ConnectionURI)
			return nil, err
		}
	}
	log.Debug("Initialized document store", "database", d.Database, "conversationId", d.ConversationID)
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection]mongo.IndexModel{
		s.messages(): {Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		s.users():    {Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// --- Documents ---

type messageDoc struct {
	OID       bson.ObjectID `bson:"_id"`
	ID        string        `bson:"id"`
	Content   string        `bson:"content"`
	IssuerID  string        `bson:"issuer_id"`
	Timestamp time.Time     `bson:"timestamp"`
	Reacts    []model.React `bson:"reacts"`
}

type userDoc struct {
	OID    bson.ObjectID `bson:"_id"`
	UserID string        `bson:"user_id"`
}

type metadataDoc struct {
	DocID    string  `bson:"_id"`
	ID       *string `bson:"id"`
	Name     string  `bson:"name"`
	IsLocked bool    `bson:"is_locked"`
}

// newMessageDoc assigns a fresh ObjectID; sorting on _id yields insertion order.
func newMessageDoc(m model.Message) messageDoc {
	reacts := m.Reacts
	if reacts == nil {
		reacts = []model.React{}
	}
	return messageDoc{
		OID:       bson.NewObjectID(),
		ID:        m.ID,
		Content:   m.Content,
		IssuerID:  m.IssuerID,
		Timestamp: m.Timestamp.UTC(),
		Reacts:    reacts,
	}
}

func (d messageDoc) toModel() model.Message {
	reacts := d.Reacts
	if reacts == nil {
		reacts = []model.React{}
	}
	return model.Message{
		ID:        d.ID,
		Content:   d.Content,
		IssuerID:  d.IssuerID,
		Timestamp: d.Timestamp.UTC(),
		Reacts:    reacts,
	}
}

// --- Collection accessors ---

func (s *MongoStore) messages() *mongo.Collection {
	return s.db.Collection("messages_" + s.conversationID)
}
func (s *MongoStore) users() *mongo.Collection { return s.db.Collection("users_" + s.conversationID) }
func (s *MongoStore) metadata() *mongo.Collection {
	return s.db.Collection("metadata_" + s.conversationID)
}

// --- Messages ---

// WriteMessages replaces the log. Without a replica set there is no
// multi-document transaction, so callers serialize writers per conversation.
func (s *MongoStore) WriteMessages(ctx context.Context, messages []model.Message) error {
	messages, err := registrystore.PrepareLog(messages)
	if err != nil {
		return err
	}
	if _, err := s.messages().DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}
	docs := make([]any, len(messages))
	for i, m := range messages {
		docs[i] = newMessageDoc(m)
	}
	if _, err := s.messages().InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &registrystore.ConflictError{Message: "message ids must be unique within a conversation"}
		}
		return fmt.Errorf("failed to insert messages: %w", err)
	}
	return nil
}

func (s *MongoStore) GetMessages(ctx context.Context) ([]model.Message, error) {
	cur, err := s.messages().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	if len(docs) == 0 {
		log.Debug("No messages to fetch", "conversationId", s.conversationID)
	}
	out := make([]model.Message, len(docs))
	for i, d := range docs {
		out[i] = d.toModel()
	}
	return out, nil
}

func (s *MongoStore) AddMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	msg, err := registrystore.PrepareMessage(msg)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := s.messages().InsertOne(ctx, newMessageDoc(msg)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.Message{}, &registrystore.ConflictError{Message: fmt.Sprintf("message %s already exists", msg.ID)}
		}
		return model.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	log.Info("Added message", "conversationId", s.conversationID, "messageId", msg.ID)
	return msg, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, messageID string) (model.Message, error) {
	var doc messageDoc
	err := s.messages().FindOne(ctx, bson.M{"id": messageID}).Decode(&doc)
	if err != nil {
		return model.Message{}, s.messageErr(err, messageID)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) EditMessage(ctx context.Context, messageID string, content string) (model.Message, error) {
	if content == "" {
		return model.Message{}, &registrystore.ValidationError{Field: "content", Message: "is required"}
	}
	return s.findAndUpdate(ctx, messageID, bson.M{"$set": bson.M{"content": content}})
}

// AddReact filters out the issuer's previous react and appends the new one
// in a single server-side update.
func (s *MongoStore) AddReact(ctx context.Context, react model.React, messageID string) (model.Message, error) {
	react, err := registrystore.PrepareReact(react)
	if err != nil {
		return model.Message{}, err
	}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "reacts", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
			bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$reacts", bson.A{}}}}},
				{Key: "as", Value: "r"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$r.issuer_id", bson.D{{Key: "$literal", Value: react.IssuerID}}}}}},
			}}},
			bson.D{{Key: "$literal", Value: bson.A{bson.D{
				{Key: "emoji", Value: react.Emoji},
				{Key: "issuer_id", Value: react.IssuerID},
			}}}},
		}}}}}}},
	}
	msg, err := s.findAndUpdate(ctx, messageID, update)
	if err != nil {
		return model.Message{}, err
	}
	log.Info("Added react", "conversationId", s.conversationID, "messageId", messageID, "issuerId", react.IssuerID)
	return msg, nil
}

func (s *MongoStore) findAndUpdate(ctx context.Context, messageID string, update any) (model.Message, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc messageDoc
	err := s.messages().FindOneAndUpdate(ctx, bson.M{"id": messageID}, update, opts).Decode(&doc)
	if err != nil {
		return model.Message{}, s.messageErr(err, messageID)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) messageErr(err error, messageID string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &registrystore.NotFoundError{Resource: "message", ID: messageID}
	}
	return fmt.Errorf("failed to load message %s: %w", messageID, err)
}

// --- Membership ---

func (s *MongoStore) GetUsersIDs(ctx context.Context) ([]string, error) {
	cur, err := s.users().Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.UserID
	}
	return ids, nil
}

func (s *MongoStore) AddUserID(ctx context.Context, userID string) error {
	if err := registrystore.Required("user_id", userID); err != nil {
		return err
	}
	_, err := s.users().InsertOne(ctx, userDoc{OID: bson.NewObjectID(), UserID: userID})
	if mongo.IsDuplicateKeyError(err) {
		log.Warn("User already member of conversation", "conversationId", s.conversationID, "userId", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	log.Info("Added user to conversation", "conversationId", s.conversationID, "userId", userID)
	return nil
}

// --- Metadata ---

func (s *MongoStore) GetMetadata(ctx context.Context) (model.ConversationMetadata, error) {
	var doc metadataDoc
	err := s.metadata().FindOne(ctx, bson.M{"_id": metadataDocID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		log.Debug("No metadata registered for conversation", "conversationId", s.conversationID)
		return model.DefaultMetadata(), nil
	}
	if err != nil {
		return model.ConversationMetadata{}, fmt.Errorf("failed to load metadata: %w", err)
	}
	return model.ConversationMetadata{ID: doc.ID, Name: doc.Name, IsLocked: doc.IsLocked}, nil
}

func (s *MongoStore) WriteMetadata(ctx context.Context, metadata model.ConversationMetadata) error {
	if err := metadata.Validate(); err != nil {
		return err
	}
	doc := metadataDoc{DocID: metadataDocID, ID: metadata.ID, Name: metadata.Name, IsLocked: metadata.IsLocked}
	_, err := s.metadata().ReplaceOne(ctx, bson.M{"_id": metadataDocID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateMetadata(ctx context.Context, patch model.MetadataPatch) (model.ConversationMetadata, error) {
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

// Close releases this store's reference on the pooled client.
func (s *MongoStore) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		err = pool.release(ctx, s.uri)
	})
	return err
}
