package v1

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	known := []string{
		TypeStatusUpdate, TypeAgentMessage, TypeTaskUpdate, TypeNotification,
		TypeError, TypePing, TypePong, TypeSubscribe,
	}
	for _, typ := range known {
		env, err := New(typ, struct{}{}, time.Now().UTC())
		if err != nil {
			t.Fatalf("New(%q): %v", typ, err)
		}
		if err := env.Validate(); err != nil {
			t.Fatalf("Validate(%q): %v", typ, err)
		}
	}

	for _, typ := range []string{"", "   ", "bogus", "STATUS_UPDATE"} {
		env := Envelope{Type: typ}
		if err := env.Validate(); err == nil {
			t.Fatalf("Validate(%q): expected error", typ)
		}
	}
}
