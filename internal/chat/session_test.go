package chat

import (
	"fmt"
	"strings"
	"testing"
)

func TestSessionContextBounded(t *testing.T) {
	t.Parallel()

	manager := NewManager(3)
	session := manager.Ensure("s1")

	for i := 0; i < 5; i++ {
		session.AppendContext(fmt.Sprintf("message-%d", i))
	}

	context := session.Context()
	if strings.Contains(context, "message-0") || strings.Contains(context, "message-1") {
		t.Fatalf("oldest entries must be evicted, got %q", context)
	}
	for i := 2; i < 5; i++ {
		if !strings.Contains(context, fmt.Sprintf("message-%d", i)) {
			t.Fatalf("expected message-%d in context %q", i, context)
		}
	}
}

func TestSessionAttestationFlagConsumedOnce(t *testing.T) {
	t.Parallel()

	session := NewManager(0).Ensure("s1")
	session.SetAttestationRequested(true)

	if !session.ConsumeAttestationRequest() {
		t.Fatalf("expected flag to be set")
	}
	if session.ConsumeAttestationRequest() {
		t.Fatalf("flag must clear after first consumption")
	}
}

func TestManagerMintsSessionID(t *testing.T) {
	t.Parallel()

	manager := NewManager(0)
	first := manager.Ensure("")
	second := manager.Ensure("")

	if first.ID == "" || second.ID == "" {
		t.Fatalf("expected minted session ids")
	}
	if first.ID == second.ID {
		t.Fatalf("minted ids must be unique")
	}
	if got := manager.Ensure(first.ID); got != first {
		t.Fatalf("expected same session for id %s", first.ID)
	}
}
