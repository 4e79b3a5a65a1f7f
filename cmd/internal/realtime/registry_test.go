package realtime

import (
	"testing"
	"time"

	v1 "fleetdeck/shared/contracts/push/v1"
)

func TestRegistryAddRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Second)

	a := NewConn("c1", "u1", "a@example.com", "admin", 0)
	b := NewConn("c2", "u1", "a@example.com", "admin", 0)
	c := NewConn("c3", "u2", "b@example.com", "viewer", 0)
	r.Add(a)
	r.Add(b)
	r.Add(c)

	if r.Count() != 3 {
		t.Fatalf("count=%d want=3", r.Count())
	}
	if got := len(r.ForUser("u1")); got != 2 {
		t.Fatalf("u1 conns=%d want=2", got)
	}

	r.Remove("c1")
	if _, ok := r.Get("c1"); ok {
		t.Fatal("c1 still present after Remove")
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("removed conn not closed")
	}

	// Removing twice is a no-op.
	r.Remove("c1")
	if r.Count() != 2 {
		t.Fatalf("count=%d want=2", r.Count())
	}

	r.Remove("c3")
	if got := len(r.ForUser("u2")); got != 0 {
		t.Fatalf("u2 conns=%d want=0", got)
	}
}

func TestSweepProbesThenTerminates(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Second)
	c := NewConn("c1", "u1", "a@example.com", "admin", 0)
	r.Add(c)

	now := time.Now().UTC()

	// First sweep: the connection was alive, so it survives but gets probed.
	r.Sweep(now)
	if _, ok := r.Get("c1"); !ok {
		t.Fatal("alive conn terminated on first sweep")
	}
	if c.Alive() {
		t.Fatal("conn not marked suspect after probe")
	}
	select {
	case env := <-c.Send:
		if env.Type != v1.TypePing {
			t.Fatalf("probe type=%q want=%q", env.Type, v1.TypePing)
		}
	default:
		t.Fatal("no probe enqueued")
	}

	// No pong: the second sweep drops it.
	r.Sweep(now.Add(heartbeatInterval))
	if _, ok := r.Get("c1"); ok {
		t.Fatal("unresponsive conn survived second sweep")
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("terminated conn not closed")
	}
}

func TestSweepSparesResponsiveConn(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, time.Second)
	c := NewConn("c1", "u1", "a@example.com", "admin", 0)
	r.Add(c)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		r.Sweep(now.Add(time.Duration(i) * heartbeatInterval))
		// The peer answers every probe.
		c.MarkAlive()
	}

	if _, ok := r.Get("c1"); !ok {
		t.Fatal("responsive conn was terminated")
	}
}
