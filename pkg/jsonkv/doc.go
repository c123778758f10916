// Package jsonkv is a process-local key-value store backed by one JSON file
// per storage key.
//
// Reads and writes happen against an in-memory [Document]. Every mutation
// requests a flush; flushes for one file never overlap, and requests that
// arrive while a write is in flight collapse into a single follow-up write
// of the newest state. Intermediate states may never reach disk, the final
// state always does.
//
// # Identity
//
// A [Registry] hands out one [Store] per storage key, so every caller that
// opens "settings.json" shares the same document and the same flush queue.
// There is no package-level registry; create one at the composition root.
//
// # Startup
//
// [Registry.Open] returns immediately and loads (or creates) the backing file
// in the background. [Store.Ready] closes when that finishes, whether or not
// the load succeeded. A corrupt file does not fail readiness; it is reported
// through [Store.InitError] and [Options.OnInitError] instead.
//
// # Failures
//
// Mutations never fail because the disk did. Write errors are logged, passed
// to [Options.OnWriteError] and returned from [Store.Sync]; in-memory state
// stays authoritative and the next flush tries again.
package jsonkv
