package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MetadataPatch is a field-level partial update of ConversationMetadata.
// Nil fields are left untouched.
type MetadataPatch struct {
	ID       *string
	Name     *string
	IsLocked *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p MetadataPatch) IsEmpty() bool {
	return p.ID == nil && p.Name == nil && p.IsLocked == nil
}

// Apply merges the patch over current. The conversation id is immutable once
// set: a patch may repeat it but never change it.
func (p MetadataPatch) Apply(current ConversationMetadata) (ConversationMetadata, error) {
	merged := current
	if p.ID != nil {
		if current.ID != nil && *current.ID != *p.ID {
			return current, &ValidationError{Field: "id", Message: "is immutable"}
		}
		id := *p.ID
		merged.ID = &id
	}
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.IsLocked != nil {
		merged.IsLocked = *p.IsLocked
	}
	if err := merged.Validate(); err != nil {
		return current, err
	}
	return merged, nil
}

// ParseMetadataPatch builds a typed patch from an untyped JSON object.
// Unknown keys and values of the wrong type, null included, are rejected.
func ParseMetadataPatch(raw map[string]json.RawMessage) (MetadataPatch, error) {
	var p MetadataPatch
	for key, value := range raw {
		if isNull(value) {
			if want, ok := metadataFieldTypes[key]; ok {
				return MetadataPatch{}, typeError(key, want)
			}
		}
		switch key {
		case "id":
			var id string
			if err := json.Unmarshal(value, &id); err != nil {
				return MetadataPatch{}, typeError(key, "string")
			}
			p.ID = &id
		case "name":
			var name string
			if err := json.Unmarshal(value, &name); err != nil {
				return MetadataPatch{}, typeError(key, "string")
			}
			p.Name = &name
		case "is_locked":
			var locked bool
			if err := json.Unmarshal(value, &locked); err != nil {
				return MetadataPatch{}, typeError(key, "boolean")
			}
			p.IsLocked = &locked
		default:
			return MetadataPatch{}, &ValidationError{Field: key, Message: "is not a metadata field"}
		}
	}
	return p, nil
}

var metadataFieldTypes = map[string]string{
	"id":        "string",
	"name":      "string",
	"is_locked": "boolean",
}

func isNull(value json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

func typeError(field, want string) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be a %s", want)}
}
