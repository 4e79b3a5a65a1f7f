package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type failingSink struct{ calls int }

func (s *failingSink) Write(context.Context, Entry) error {
	s.calls++
	return errors.New("sink down")
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	r := NewRecorder(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r.Record(ctx, Entry{
			Action: ActionLoginSuccess,
			Email:  fmt.Sprintf("user%d@example.com", i),
		})
	}

	recent := r.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("len=%d want=3", len(recent))
	}
	// Newest first.
	if recent[0].Email != "user2@example.com" {
		t.Fatalf("newest=%q want user2", recent[0].Email)
	}
	if recent[0].Timestamp.IsZero() {
		t.Fatal("timestamp not defaulted")
	}
}

func TestQueryFilters(t *testing.T) {
	t.Parallel()

	r := NewRecorder(nil)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	r.Record(ctx, Entry{Timestamp: base, Action: ActionLoginSuccess, UserID: "u1"})
	r.Record(ctx, Entry{Timestamp: base.Add(time.Minute), Action: ActionLogout, UserID: "u1"})
	r.Record(ctx, Entry{Timestamp: base.Add(2 * time.Minute), Action: ActionLoginSuccess, UserID: "u2"})

	if got := r.Query(Query{UserID: "u1"}); len(got) != 2 {
		t.Fatalf("userId filter len=%d want=2", len(got))
	}
	if got := r.Query(Query{Action: ActionLoginSuccess}); len(got) != 2 {
		t.Fatalf("action filter len=%d want=2", len(got))
	}
	if got := r.Query(Query{UserID: "u1", Action: ActionLogout}); len(got) != 1 {
		t.Fatalf("combined filter len=%d want=1", len(got))
	}

	got := r.Query(Query{Since: base.Add(90 * time.Second)})
	if len(got) != 1 || got[0].UserID != "u2" {
		t.Fatalf("since filter: %+v", got)
	}

	if got := r.Query(Query{Limit: 1}); len(got) != 1 || got[0].UserID != "u2" {
		t.Fatalf("limit: %+v", got)
	}
}

func TestRingWrapsAtCapacity(t *testing.T) {
	t.Parallel()

	r := NewRecorder(nil)
	ctx := context.Background()

	for i := 0; i < ringSize+10; i++ {
		r.Record(ctx, Entry{Action: ActionLogout, Detail: fmt.Sprintf("%d", i)})
	}

	recent := r.Recent(ringSize + 100)
	if len(recent) != ringSize {
		t.Fatalf("len=%d want=%d", len(recent), ringSize)
	}
	if recent[0].Detail != fmt.Sprintf("%d", ringSize+9) {
		t.Fatalf("newest=%q", recent[0].Detail)
	}
}

func TestSinkFailureDoesNotPropagate(t *testing.T) {
	t.Parallel()

	sink := &failingSink{}
	r := NewRecorder(nil, sink)

	r.Record(context.Background(), Entry{Action: ActionLoginFailure})

	if sink.calls != 1 {
		t.Fatalf("calls=%d want=1", sink.calls)
	}
	if len(r.Recent(1)) != 1 {
		t.Fatal("entry not recorded despite sink failure")
	}
}

func TestFileSinkWritesJSONL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer sink.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	entries := []Entry{
		{Timestamp: now, Action: ActionLoginSuccess, Email: "demo@example.com"},
		{Timestamp: now, Action: ActionTokenRevoked, UserID: "u1"},
	}
	for _, e := range entries {
		if err := sink.Write(ctx, e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var got []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad line %q: %v", scanner.Text(), err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("lines=%d want=2", len(got))
	}
	if got[0].Action != ActionLoginSuccess || got[1].UserID != "u1" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
