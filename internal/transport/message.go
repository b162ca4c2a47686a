// Package transport defines the envelope types that flow between channel
// adapters and the dispatch kernel. An InboundMessage is immutable after
// construction and owned by the pipeline for the duration of one turn.
package transport

import "time"

// PeerKind distinguishes the shape of the conversation a message arrived on.
type PeerKind string

const (
	PeerDM      PeerKind = "dm"
	PeerGroup   PeerKind = "group"
	PeerChannel PeerKind = "channel"
)

// MediaKind tags the union type carried by a MediaAttachment.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
	MediaVoice    MediaKind = "voice"
)

// MediaAttachment is a tagged union over the supported media kinds. Exactly
// one of URL, Path or Buffer is populated by the adapter that produced it.
// When URL is set it is the transport's native file handle — callers must
// treat it as opaque and never attempt to parse or rewrite it.
type MediaAttachment struct {
	Kind     MediaKind
	URL      string
	Path     string
	Buffer   []byte
	MimeType string
	Filename string
	Caption  string
	SizeByte int64

	WidthPx    int
	HeightPx   int
	DurationMs int
}

// ProviderRaw is an opaque box for channel-specific payloads that must never
// be traversed outside the adapter that produced them (e.g. a Discord event
// embedding its own gateway session). The core never reads its contents.
type ProviderRaw struct {
	value any
}

// NewProviderRaw wraps an arbitrary adapter-private value.
func NewProviderRaw(v any) ProviderRaw { return ProviderRaw{value: v} }

// Unwrap returns the wrapped value. Only the owning adapter should call this.
func (p ProviderRaw) Unwrap() any { return p.value }

// InboundMessage is the canonical envelope for one incoming unit of work.
type InboundMessage struct {
	ID          string
	Channel     string
	PeerID      string
	PeerKind    PeerKind
	SenderID    string
	SenderName  string
	AccountID   string
	ThreadID    string
	Text        string
	Media       []MediaAttachment
	ReplyToID   string
	Timestamp   time.Time
	ProviderRaw ProviderRaw
}

// Button is one cell of an OutboundMessage's inline-button grid.
type Button struct {
	Text         string
	CallbackData string
	URL          string
}

// OutboundMessage is what the message handler hands back to a channel
// adapter's Send method.
type OutboundMessage struct {
	Text      string
	Media     []MediaAttachment
	Buttons   [][]Button
	ReplyToID string
	Silent    bool
}
