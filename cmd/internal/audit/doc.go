// Package audit records security-relevant authentication events.
//
// The Recorder keeps a bounded in-memory ring of recent entries for quick
// inspection and fans each entry out to configured sinks (JSONL file,
// Postgres). Sink failures are logged and never propagate to the caller; an
// audit write must not fail a login.
package audit
