// Package rows stores the client-visible collections. Every collection is
// declared in Schema; names and columns from requests are checked against it
// before they reach SQL.
package rows

import (
	"fmt"
	"slices"

	"github.com/survivalcodex/codex/internal/common"
)

type Kind int

const (
	Text Kind = iota
	Time
	JSON
)

// Collection describes one table.
type Collection struct {
	Name string
	// Owner is the column holding the owning user id. Empty for public
	// collections.
	Owner    string
	Columns  map[string]Kind
	ReadOnly bool
	// Order is used when a select names no column.
	Order string
	// Rules are validator tags applied to written values.
	Rules map[string]string
}

func (c Collection) Has(column string) bool {
	_, ok := c.Columns[column]
	return ok
}

func (c Collection) Kind(column string) Kind { return c.Columns[column] }

// Public collections are readable without a session.
func (c Collection) Public() bool { return c.Owner == "" }

// ColumnNames returns the columns in a stable order.
func (c Collection) ColumnNames() []string {
	names := make([]string, 0, len(c.Columns))
	for n := range c.Columns {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Check fails with common.ErrorUnknownColumn for the first column c lacks.
func (c Collection) Check(columns ...string) error {
	for _, col := range columns {
		if !c.Has(col) {
			return fmt.Errorf("%w: %s.%s", common.ErrorUnknownColumn, c.Name, col)
		}
	}
	return nil
}

var Schema = map[string]Collection{
	"profiles": {
		Name:  "profiles",
		Owner: "id",
		Columns: map[string]Kind{
			"id": Text, "email": Text, "name": Text, "subscription_tier": Text,
			"subscription_expiry_date": Time, "avatar_url": Text, "language": Text,
			"api_key": Text, "created_at": Time, "updated_at": Time,
		},
		Order: "id",
		// Owners may write their own subscription fields: purchases are
		// verified on the device, not here.
		Rules: map[string]string{
			"email":             "omitempty,email",
			"name":              "max=120",
			"subscription_tier": "oneof=free premium",
			"language":          "omitempty,min=2,max=16",
			"avatar_url":        "omitempty,url",
		},
	},
	"bookmarks": {
		Name:    "bookmarks",
		Owner:   "user_id",
		Columns: map[string]Kind{"user_id": Text, "technique_id": Text, "created_at": Time},
		Order:   "created_at",
		Rules:   map[string]string{"technique_id": "required,max=64"},
	},
	"downloads": {
		Name:    "downloads",
		Owner:   "user_id",
		Columns: map[string]Kind{"user_id": Text, "technique_id": Text, "created_at": Time},
		Order:   "created_at",
		Rules:   map[string]string{"technique_id": "required,max=64"},
	},
	"ai_conversations": {
		Name:  "ai_conversations",
		Owner: "user_id",
		Columns: map[string]Kind{
			"id": Text, "user_id": Text, "title": Text, "created_at": Time, "updated_at": Time,
		},
		Order: "updated_at",
		Rules: map[string]string{"id": "uuid", "title": "max=200"},
	},
	"ai_messages": {
		Name:  "ai_messages",
		Owner: "user_id",
		Columns: map[string]Kind{
			"id": Text, "conversation_id": Text, "user_id": Text, "role": Text,
			"content": Text, "created_at": Time,
		},
		Order: "created_at",
		Rules: map[string]string{"id": "uuid", "conversation_id": "uuid", "role": "oneof=user assistant"},
	},
	"billing_receipts": {
		Name:  "billing_receipts",
		Owner: "user_id",
		Columns: map[string]Kind{
			"user_id": Text, "platform": Text, "product_id": Text, "purchase_token": Text,
			"order_id": Text, "expiry_time": Time, "raw_payload": JSON, "created_at": Time,
		},
		Order: "created_at",
		Rules: map[string]string{"platform": "required", "product_id": "required", "purchase_token": "required"},
	},
	"techniques": {
		Name: "techniques",
		Columns: map[string]Kind{
			"id": Text, "category": Text, "difficulty": Text, "title": Text,
			"description": Text, "steps": JSON, "warnings": JSON, "tips": JSON,
			"time_estimate": Text,
		},
		ReadOnly: true,
		Order:    "id",
	},
}

// Lookup returns the named collection or common.ErrorUnknownCollection.
func Lookup(name string) (Collection, error) {
	c, ok := Schema[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %q", common.ErrorUnknownCollection, name)
	}
	return c, nil
}
