// Package link owns the persistent TCP connection to the peer.
//
// Ownership boundary:
// - outgoing/incoming frame queues and their wake signals
// - the connection goroutine (dial, drain, keepalive, teardown)
// - the per-connection reader goroutine
// - reconnect backoff
//
// Frames queued while the link is down are discarded at teardown; the
// queues themselves survive reconnects.
package link
