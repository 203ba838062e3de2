// Package cli provides the interactive ankisync command-line client.
//
// It wires configuration, the collection and media stores, the sync
// services and an interactive REPL. A background watcher keeps the media
// index current while the REPL waits for commands.
//
// Key features:
//   - Login / Logout and custom sync server selection
//   - Incremental sync of the collection, then media
//   - Full download or upload when the collections cannot be merged
//   - Ctrl-C aborts a running sync and leaves the collection untouched
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
