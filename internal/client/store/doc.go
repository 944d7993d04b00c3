// Package store is the device-local key-value store every other client
// component falls back to.
//
// Values are JSON documents kept in a single SQLite table (kv). Each read
// decodes a fresh copy, so callers never share mutable state through the
// store. Writing a nil value removes the key instead of storing a null.
// Stored data that no longer decodes is logged and treated as absent, so the
// caller's default wins.
//
// Logical keys used by the app live in keys.go.
package store
