// Package cli provides the interactive Survival Codex command-line client.
//
// It wires configuration, the local store, the remote gateway and every
// client component behind a small REPL. Without a configured endpoint the
// app runs entirely in local mode; with one, a background watcher pings the
// backend and switches between online and offline.
//
// Key features:
//   - Register / Login / Logout, profile edits and avatar upload
//   - Browse techniques, bookmark them, download them for offline reading
//   - Ask the assistant, browse and delete past conversations
//   - Purchase or restore a premium subscription
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
