package authbroker

import (
	"context"
	"testing"
)

func TestSetCheckUnset(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if ok, _ := b.Check(ctx, "mozi", "OPENAI_API_KEY"); ok {
		t.Fatalf("expected key absent before Set")
	}

	if err := b.Set(ctx, "mozi", "OPENAI_API_KEY", "sk-test"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, _ := b.Check(ctx, "mozi", "OPENAI_API_KEY"); !ok {
		t.Fatalf("expected key present after Set")
	}

	keys, err := b.List(ctx, "mozi")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "OPENAI_API_KEY" {
		t.Fatalf("expected [OPENAI_API_KEY], got %v", keys)
	}

	if err := b.Unset(ctx, "mozi", "OPENAI_API_KEY"); err != nil {
		t.Fatalf("Unset: %v", err)
	}
	if ok, _ := b.Check(ctx, "mozi", "OPENAI_API_KEY"); ok {
		t.Fatalf("expected key absent after Unset")
	}
}

func TestSetOverwritesExistingValue(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	b.Set(ctx, "mozi", "K", "first")
	b.Set(ctx, "mozi", "K", "second")

	v, ok, err := b.Get(ctx, "mozi", "K")
	if err != nil || !ok || v != "second" {
		t.Fatalf("expected overwritten value %q, got %q ok=%v err=%v", "second", v, ok, err)
	}
}

func TestScopedPerAgent(t *testing.T) {
	b, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()
	ctx := context.Background()

	b.Set(ctx, "agent-a", "K", "a-value")
	if ok, _ := b.Check(ctx, "agent-b", "K"); ok {
		t.Fatalf("expected agent-b to not see agent-a's secret")
	}
}
