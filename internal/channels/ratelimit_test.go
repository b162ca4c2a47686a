package channels

import "testing"

func TestWebhookRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewWebhookRateLimiter()
	for i := 0; i < rateLimitMaxHits; i++ {
		if !rl.Allow("k") {
			t.Fatalf("expected hit %d to be allowed", i)
		}
	}
	if rl.Allow("k") {
		t.Fatalf("expected hit beyond max to be rejected")
	}
}

func TestWebhookRateLimiterTracksKeysIndependently(t *testing.T) {
	rl := NewWebhookRateLimiter()
	if !rl.Allow("a") || !rl.Allow("b") {
		t.Fatalf("expected distinct keys to be allowed independently")
	}
}

func TestOutboundLimiterBurstThenThrottle(t *testing.T) {
	lim := NewOutboundLimiter(1, 2)
	if !lim.Allow("telegram") {
		t.Fatalf("expected first send to be allowed")
	}
	if !lim.Allow("telegram") {
		t.Fatalf("expected second send (within burst) to be allowed")
	}
	if lim.Allow("telegram") {
		t.Fatalf("expected third immediate send to be throttled")
	}
}

func TestOutboundLimiterPerChannel(t *testing.T) {
	lim := NewOutboundLimiter(1, 1)
	if !lim.Allow("telegram") {
		t.Fatalf("expected telegram send to be allowed")
	}
	if !lim.Allow("discord") {
		t.Fatalf("expected discord to have its own independent bucket")
	}
}
