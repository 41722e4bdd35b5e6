package conversations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bourracho/chat-registry/internal/model"
	registrystore "github.com/bourracho/chat-registry/internal/registry/store"
	"github.com/bourracho/chat-registry/internal/tempfiles"
)

// IndexFileName is the name of the registry index inside the registry directory.
const IndexFileName = "information.json"

// Index is the registry's durable root object.
type Index struct {
	ID          string
	Descriptors map[string]registrystore.Descriptor
	Users       map[string]model.User
}

// NewIndex returns an empty index for the registry id.
func NewIndex(id string) Index {
	return Index{
		ID:          id,
		Descriptors: map[string]registrystore.Descriptor{},
		Users:       map[string]model.User{},
	}
}

// indexFile is the on-disk shape. Descriptors and users are stored as
// individually encoded JSON documents keyed by their id.
type indexFile struct {
	ID                 string            `json:"id"`
	ConversationStores map[string]string `json:"conversation_stores"`
	Users              map[string]string `json:"users"`
}

// EncodeIndex serializes idx. Map keys are emitted in sorted order so equal
// indexes always encode to identical bytes.
func EncodeIndex(idx Index) ([]byte, error) {
	out := indexFile{
		ID:                 idx.ID,
		ConversationStores: make(map[string]string, len(idx.Descriptors)),
		Users:              make(map[string]string, len(idx.Users)),
	}
	for cid, d := range idx.Descriptors {
		d.ConversationID = cid
		data, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode descriptor %s: %w", cid, err)
		}
		out.ConversationStores[cid] = string(data)
	}
	for uid, u := range idx.Users {
		data, err := json.Marshal(u)
		if err != nil {
			return nil, fmt.Errorf("encode user %s: %w", uid, err)
		}
		out.Users[uid] = string(data)
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeIndex parses an index document. A blank document or {} decodes to
// an empty index.
func DecodeIndex(data []byte) (Index, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewIndex(""), nil
	}
	var in indexFile
	if err := json.Unmarshal(data, &in); err != nil {
		return Index{}, fmt.Errorf("decode registry index: %w", err)
	}
	idx := NewIndex(in.ID)
	for cid, raw := range in.ConversationStores {
		var d registrystore.Descriptor
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return Index{}, fmt.Errorf("decode descriptor %s: %w", cid, err)
		}
		switch d.ConversationID {
		case "":
			d.ConversationID = cid
		case cid:
		default:
			return Index{}, fmt.Errorf("descriptor %s names conversation %s", cid, d.ConversationID)
		}
		if err := d.Validate(); err != nil {
			return Index{}, fmt.Errorf("descriptor %s: %w", cid, err)
		}
		idx.Descriptors[cid] = d
	}
	for uid, raw := range in.Users {
		var u model.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return Index{}, fmt.Errorf("decode user %s: %w", uid, err)
		}
		if u.ID != uid {
			return Index{}, fmt.Errorf("user record %s has id %q", uid, u.ID)
		}
		idx.Users[uid] = u
	}
	return idx, nil
}

// ReadIndex loads the index at path. found is false when no index exists yet.
func ReadIndex(path string) (idx Index, found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Index{}, false, nil
	}
	if err != nil {
		return Index{}, false, fmt.Errorf("read registry index: %w", err)
	}
	idx, err = DecodeIndex(data)
	if err != nil {
		return Index{}, false, err
	}
	return idx, true, nil
}

// WriteIndex atomically replaces the index at path.
func WriteIndex(path string, idx Index) error {
	data, err := EncodeIndex(idx)
	if err != nil {
		return err
	}
	return tempfiles.ReplaceFile(path, data, 0o644)
}
