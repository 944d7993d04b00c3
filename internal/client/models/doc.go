// Package models defines the client-side data model: the current user,
// technique sheets, AI conversations, the AI usage quota and billing receipts.
//
// Every type carries JSON tags matching the local store encoding; the
// conversions to and from remote rows live with the components that own
// each collection.
package models
