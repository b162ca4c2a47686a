package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
)

func TestCompoundID(t *testing.T) {
	if got := compoundID("123", nil); got != "123" {
		t.Errorf("expected bare id with nil user, got %q", got)
	}
	if got := compoundID("123", &telego.User{Username: "alice"}); got != "123|alice" {
		t.Errorf("expected compound id, got %q", got)
	}
	if got := compoundID("123", &telego.User{}); got != "123" {
		t.Errorf("expected bare id when username empty, got %q", got)
	}
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-1001234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != -1001234567890 {
		t.Errorf("unexpected chat id: %d", id)
	}
	if _, err := parseChatID("not-a-number"); err == nil {
		t.Errorf("expected error for non-numeric peer id")
	}
}

func TestResolveThreadIDForSend(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"1", 0},
		{"42", 42},
		{"not-a-number", 0},
	}
	for _, c := range cases {
		if got := resolveThreadIDForSend(c.in); got != c.want {
			t.Errorf("resolveThreadIDForSend(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestStripComposite(t *testing.T) {
	if got := stripComposite("123:topic:42"); got != "123" {
		t.Errorf("expected composite stripped, got %q", got)
	}
	if got := stripComposite("123"); got != "123" {
		t.Errorf("expected plain peer id unchanged, got %q", got)
	}
}

func TestThreadFromPeerID(t *testing.T) {
	if got := threadFromPeerID("123:topic:42"); got != "42" {
		t.Errorf("expected thread id 42, got %q", got)
	}
	if got := threadFromPeerID("123"); got != "" {
		t.Errorf("expected empty thread id, got %q", got)
	}
}
