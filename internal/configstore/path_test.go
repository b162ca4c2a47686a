package configstore

import "testing"

func TestParsePath(t *testing.T) {
	cases := []struct {
		path string
		want int
	}{
		{"a.b.c", 3},
		{"channels.telegram.allow[0].id", 5},
		{"a\\.b", 1},
	}
	for _, tc := range cases {
		segs, err := parsePath(tc.path)
		if err != nil {
			t.Fatalf("parsePath(%q): %v", tc.path, err)
		}
		if len(segs) != tc.want {
			t.Errorf("parsePath(%q) = %d segments, want %d", tc.path, len(segs), tc.want)
		}
	}
}

func TestGetSetPathRoundTrip(t *testing.T) {
	raw := map[string]any{
		"channels": map[string]any{
			"telegram": map[string]any{
				"enabled": true,
			},
		},
	}

	if err := setPath(raw, "channels.telegram.token", "abc123"); err != nil {
		t.Fatalf("setPath: %v", err)
	}

	v, ok := getPath(raw, "channels.telegram.token")
	if !ok || v != "abc123" {
		t.Fatalf("getPath after setPath = %v, %v", v, ok)
	}

	if !deletePath(raw, "channels.telegram.token") {
		t.Fatalf("deletePath returned false")
	}
	if _, ok := getPath(raw, "channels.telegram.token"); ok {
		t.Fatalf("expected path to be gone after delete")
	}
}

func TestSetPathCreatesIntermediateMaps(t *testing.T) {
	raw := map[string]any{}
	if err := setPath(raw, "a.b.c", 42); err != nil {
		t.Fatalf("setPath: %v", err)
	}
	v, ok := getPath(raw, "a.b.c")
	if !ok || v != 42 {
		t.Fatalf("getPath = %v, %v, want 42, true", v, ok)
	}
}

func TestSetPathArrayIndexOutOfRangeFails(t *testing.T) {
	raw := map[string]any{"items": []any{1, 2}}
	if err := setPath(raw, "items[5]", 9); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}
