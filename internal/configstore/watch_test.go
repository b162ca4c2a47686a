package configstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPatchWithRedactedSentinelKeepsExistingSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"channels":{"discord":{"token":"d-secret"}},"gateway":{"port":1}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	ops := []PatchOp{
		{Path: "channels.discord.token", Value: redactedSentinel},
		{Path: "gateway.port", Value: 2},
	}
	if _, err := store.Patch(ops, snap.RawHash); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	unredacted, ok := getPath(store.rawCurrent().Raw, "channels.discord.token")
	if !ok || unredacted != "d-secret" {
		t.Fatalf("expected discord token preserved across patch, got %v", unredacted)
	}

	port, ok := store.Get("gateway.port")
	if !ok {
		t.Fatal("expected gateway.port to resolve")
	}
	if f, ok := port.(float64); !ok || int(f) != 2 {
		t.Fatalf("gateway.port = %v, want 2", port)
	}
}

func TestPatchWithRedactedSentinelAndNoExistingValueFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	ops := []PatchOp{{Path: "channels.telegram.apiKey", Value: redactedSentinel}}
	if _, err := store.Patch(ops, snap.RawHash); err == nil {
		t.Fatal("expected an error patching the sentinel with nothing to preserve")
	}
}
