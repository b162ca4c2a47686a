package configstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenLoadsMissingFileAsEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")

	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	snap := store.Current()
	if len(snap.Raw) != 0 {
		t.Fatalf("expected empty document, got %v", snap.Raw)
	}
}

func TestApplyRejectsStaleHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"gateway":{"port":18790}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	if _, err := store.Apply("gateway.port", 9090, [32]byte{}); err == nil {
		t.Fatalf("expected conflict error for wrong hash")
	}
	if _, err := store.Apply("gateway.port", 9090, snap.RawHash); err != nil {
		t.Fatalf("Apply with correct hash failed: %v", err)
	}

	v, ok := store.Get("gateway.port")
	if !ok {
		t.Fatalf("expected gateway.port to resolve")
	}
	f, ok := v.(float64)
	if !ok || int(f) != 9090 {
		t.Fatalf("gateway.port = %v, want 9090", v)
	}
}

func TestCurrentRedactsSecretPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"channels":{"telegram":{"botToken":"super-secret"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	v, ok := getPath(snap.Raw, "channels.telegram.botToken")
	if !ok || v != redactedSentinel {
		t.Fatalf("expected redacted sentinel, got %v", v)
	}
}

func TestBackupRotationRetainsNewest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"n":0}`), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := Open(Options{Path: path, MaxBackups: 2})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	names := map[string]bool{}
	for i := 0; i < 5; i++ {
		snap := store.Current()
		if _, err := store.Apply("n", i+1, snap.RawHash); err != nil {
			t.Fatalf("Apply iteration %d: %v", i, err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "config.jsonc.bak.") {
				names[e.Name()] = true
			}
		}
	}

	// Every mutation produced a same-byte-length revision (single-digit n);
	// a content/length-keyed backup name would collide them all into one
	// file. A timestamp-keyed name must keep them distinct as they're
	// written, even though pruning later caps the count on disk.
	if len(names) < 5 {
		t.Fatalf("expected 5 distinct backup filenames across 5 mutations, got %d: %v", len(names), names)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "config.jsonc.bak.") {
			count++
		}
	}
	if count > 2 {
		t.Fatalf("expected at most 2 backups retained on disk, got %d", count)
	}
}

func TestApplyWithRedactedSentinelKeepsExistingSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"channels":{"telegram":{"botToken":"super-secret"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	v, ok := getPath(snap.Raw, "channels.telegram.botToken")
	if !ok || v != redactedSentinel {
		t.Fatalf("expected redacted sentinel from Current, got %v", v)
	}

	// Writing back exactly what Current returned must not destroy the
	// underlying secret.
	if _, err := store.Apply("channels.telegram.botToken", redactedSentinel, snap.RawHash); err != nil {
		t.Fatalf("Apply with sentinel value: %v", err)
	}

	raw, ok := store.Get("channels.telegram.botToken")
	if !ok {
		t.Fatal("expected token to still resolve")
	}
	if raw != redactedSentinel {
		t.Fatalf("Get still redacts, got %v", raw)
	}

	// Peek at the store's own unredacted view to confirm the real secret
	// survived the round trip.
	unredacted, ok := getPath(store.rawCurrent().Raw, "channels.telegram.botToken")
	if !ok || unredacted != "super-secret" {
		t.Fatalf("expected underlying secret preserved, got %v", unredacted)
	}
}

func TestApplyWithRedactedSentinelAndNoExistingValueFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	if _, err := store.Apply("channels.discord.botToken", redactedSentinel, snap.RawHash); err == nil {
		t.Fatal("expected an error writing the sentinel with nothing to preserve")
	}
}

func TestIsSecretKeyIsGenericNotAllowlisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.jsonc")
	if err := os.WriteFile(path, []byte(`{"providers":{"customProvider":{"apiKey":"sk-123"}},"auth":{"BotToken":"b-123"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	store, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	snap := store.Current()
	if v, ok := getPath(snap.Raw, "providers.customProvider.apiKey"); !ok || v != redactedSentinel {
		t.Fatalf("expected a never-seen provider's apiKey to be redacted, got %v", v)
	}
	if v, ok := getPath(snap.Raw, "auth.BotToken"); !ok || v != redactedSentinel {
		t.Fatalf("expected case-insensitive BotToken to be redacted, got %v", v)
	}
}
