package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Action names an auditable event.
type Action string

const (
	ActionLoginSuccess   Action = "login.success"
	ActionLoginFailure   Action = "login.failure"
	ActionRefreshSuccess Action = "refresh.success"
	ActionRefreshFailure Action = "refresh.failure"
	ActionLogout         Action = "logout"
	ActionTokenRevoked   Action = "token.revoked"
	ActionUserRevoked    Action = "user.revoked"
)

// Entry is one audit record. UserID and Email may be empty when the actor
// could not be identified (e.g. a failed login for an unknown account).
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	UserID    string    `json:"userId,omitempty"`
	Email     string    `json:"email,omitempty"`
	RemoteIP  string    `json:"remoteIp,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink persists audit entries somewhere durable.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// ringSize bounds the in-memory history.
const ringSize = 1000

// Recorder is the audit entry point. Safe for concurrent use.
type Recorder struct {
	log   *slog.Logger
	sinks []Sink

	mu   sync.Mutex
	ring []Entry
	next int
	full bool
}

// NewRecorder constructs a Recorder fanning out to the given sinks. A nil
// logger falls back to slog.Default.
func NewRecorder(log *slog.Logger, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		log:   log,
		sinks: sinks,
		ring:  make([]Entry, ringSize),
	}
}

// Record stores the entry in the ring and writes it to every sink. Sink
// errors are logged, not returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	r.ring[r.next] = e
	r.next = (r.next + 1) % ringSize
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Write(ctx, e); err != nil {
			r.log.Error("audit.sink.fail",
				slog.String("action", string(e.Action)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Recent returns up to n most recent entries, newest first.
func (r *Recorder) Recent(n int) []Entry {
	return r.Query(Query{Limit: n})
}

// Query filters the in-memory history. Zero-valued fields match everything.
type Query struct {
	UserID string
	Action Action
	Since  time.Time
	Limit  int
}

func (q Query) matches(e Entry) bool {
	if q.UserID != "" && e.UserID != q.UserID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// Query returns matching entries from the ring, newest first, up to q.Limit
// (or everything retained when Limit is zero or negative).
func (r *Recorder) Query(q Query) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = ringSize
	}
	limit := q.Limit
	if limit <= 0 || limit > size {
		limit = size
	}

	var out []Entry
	for i := 1; i <= size && len(out) < limit; i++ {
		idx := (r.next - i + ringSize) % ringSize
		if q.matches(r.ring[idx]) {
			out = append(out, r.ring[idx])
		}
	}
	return out
}
