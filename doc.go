// Package olsync mirrors a remote collaborative LaTeX project into a local,
// addressable tree and keeps it consistent with the server.
//
// # Engine
//
// An [Engine] owns the tree of one project. [Engine.Init] joins the project
// over a realtime channel, attaches the project settings fetched from the
// HTTP API and publishes the snapshot. Concurrent callers share a single
// join. After that, structural notifications (created, renamed, removed,
// moved) and content updates flow from the channel into the tree in the
// order the server sent them.
//
// Documents are fetched on first read with [Engine.OpenDocument] and kept
// current by applying the server's operations. Output files of a compile
// are downloaded through the HTTP API instead.
//
// # Reconnection
//
// When a joined channel drops, the engine rejoins on a fresh channel.
// Consecutive failures are counted; reaching the cap reports
// [ErrConnectionLost] to whoever waits in Init. A server that rejects a
// join makes the engine retry once with the alternate join scheme before
// giving up with [ErrJoinRejected].
//
// # Sessions
//
// Credentials travel in a caller-owned [Session]. The package keeps no
// global state; any number of engines, on any number of servers, can run
// side by side.
package olsync
