package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/bdobrica/OrthoBot/common/trace"
)

func TestGenerateID_Unique(t *testing.T) {
	a, b := trace.GenerateID(), trace.GenerateID()
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
	if !strings.HasPrefix(a, "t_") {
		t.Errorf("expected t_ prefix, got %q", a)
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := trace.Ensure(context.Background(), "")
	if id == "" || trace.FromContext(ctx) != id {
		t.Fatalf("Ensure with empty id should generate one, got %q", id)
	}

	ctx2, id2 := trace.Ensure(ctx, "t_other")
	if id2 != id || ctx2 != ctx {
		t.Errorf("Ensure should keep the existing trace ID %q, got %q", id, id2)
	}

	_, id3 := trace.Ensure(context.Background(), "t_from_header")
	if id3 != "t_from_header" {
		t.Errorf("Ensure should adopt the supplied id, got %q", id3)
	}
}
