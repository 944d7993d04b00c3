package proto

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type OAuthCredentials struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
}

type Query struct {
	Collection string           `json:"collection"`
	Filter     map[string]any   `json:"filter,omitempty"`
	Rows       []map[string]any `json:"rows,omitempty"`
	Patch      map[string]any   `json:"patch,omitempty"`
	OnConflict []string         `json:"on_conflict,omitempty"`
	OrderBy    string           `json:"order_by,omitempty"`
	Desc       bool             `json:"desc,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

type Result struct {
	Rows  []map[string]any `json:"rows"`
	Count int              `json:"count"`
}

type UploadRequest struct {
	ContentType string `json:"content_type"`
}

type UploadTicket struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	PublicURL string `json:"public_url"`
}

type Status struct {
	Status string `json:"status"`
}

type Empty struct{}

// ToStruct converts any JSON-marshalable value (normally one of the message
// types above) into a Struct. Times become RFC 3339 strings, pointers are
// dereferenced and json.RawMessage is embedded as-is.
func ToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return s, nil
}

// FromStruct decodes s into dst. A nil Struct decodes as an empty object.
func FromStruct(s *structpb.Struct, dst any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
