package store

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the Descriptor union.
type Kind string

const (
	KindFile       Kind = "file"
	KindDocumentDB Kind = "document_db"
)

// Descriptor identifies the backend and connection parameters of one
// conversation's store. Which fields apply depends on Type.
type Descriptor struct {
	Type           Kind   `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`

	// file
	Directory string `json:"directory,omitempty"`

	// document_db
	ConnectionURI string `json:"connection_uri,omitempty"`
	Database      string `json:"database,omitempty"`
}

// FileDescriptor describes a file-backed conversation rooted at dir.
func FileDescriptor(dir string) Descriptor {
	return Descriptor{Type: KindFile, Directory: dir}
}

// DocumentDBDescriptor describes a conversation stored in a document database.
func DocumentDBDescriptor(uri, database string) Descriptor {
	return Descriptor{Type: KindDocumentDB, ConnectionURI: uri, Database: database}
}

// Validate checks that the variant's required parameters are present.
func (d Descriptor) Validate() error {
	switch d.Type {
	case KindFile:
		if d.Directory == "" {
			return &ValidationError{Field: "directory", Message: "is required for file stores"}
		}
	case KindDocumentDB:
		if d.ConnectionURI == "" {
			return &ValidationError{Field: "connection_uri", Message: "is required for document_db stores"}
		}
		if d.Database == "" {
			return &ValidationError{Field: "database", Message: "is required for document_db stores"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown store type %q", d.Type)}
	}
	return nil
}

// UnmarshalJSON decodes a descriptor and rejects unknown variants.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type alias Descriptor
	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch aux.Type {
	case KindFile, KindDocumentDB:
	default:
		return fmt.Errorf("unknown store type %q", aux.Type)
	}
	*d = Descriptor(aux)
	return nil
}
