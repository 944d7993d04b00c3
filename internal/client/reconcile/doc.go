// Package reconcile implements the one algorithm behind every piece of
// user-owned state: a collection that lives in the local store while there
// is no remote session, and in a remote table (read through a TTL cache,
// written through) while there is one.
//
// # Modes
//
// Local mode keeps the whole collection as one JSON list under a single
// store key. Remote mode is chosen when the identity reports a remote user;
// reads then query the remote table filtered by the owner column and writes
// go straight to the gateway. Local data is never touched by remote mode:
// after sign-in it stays dormant until ImportLocal is called.
//
// # Remote reads
//
// A successful fetch is cached in memory for TTL and persisted as a per-user
// snapshot in the store. Concurrent fetches for one user share a single
// request. When a fetch fails, the snapshot is served instead; only when no
// snapshot exists does the error reach the caller.
//
// # Remote writes
//
// Put is an upsert on (owner, key) and Remove is delete-if-exists, so
// repeating either is harmless. Writes to the same key are serialised by a
// per-key lock, which keeps Toggle's check-then-act safe inside one process.
// A failed write returns the error and leaves local state as it was.
//
// Effects let a caller attach side writes (the downloads content cache) to a
// mutation: inside the local transaction, or around the remote call with an
// undo on failure.
package reconcile
