// Package realtime is the WebSocket push layer.
//
// The Gateway authenticates handshakes and runs per-connection read/write
// loops; the Registry tracks live connections and sweeps the unresponsive
// ones; the Router fans envelopes out globally or to a single user's
// connections. Delivery is at-most-once: a slow or closed connection is
// skipped, never allowed to block the fanout.
package realtime
