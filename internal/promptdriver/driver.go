// Package promptdriver defines the external language-model collaborator
// contract the dispatch kernel drives one turn through. The driver itself
// (concrete LLM client, tool execution, context assembly) is out of scope —
// this package only shapes the interface boundary, generalizing the
// teacher's providers.Provider Chat/ChatStream pair into a pull-based
// iterator per the REDESIGN FLAGS' "cooperative generators for streaming".
package promptdriver

import "context"

// EventKind tags one event in a driver's turn stream.
type EventKind string

const (
	EventTextDelta EventKind = "text_delta"
	EventToolCall  EventKind = "tool_call"
	EventFinal     EventKind = "final"
	EventError     EventKind = "error"
)

// Event is one unit yielded by a Stream.
type Event struct {
	Kind EventKind

	// TextDelta is populated when Kind == EventTextDelta.
	TextDelta string

	// ToolName/ToolCallID are populated when Kind == EventToolCall.
	ToolName   string
	ToolCallID string

	// FinalText is populated when Kind == EventFinal — the driver's last
	// word on the reply, which takes precedence over accumulated deltas.
	FinalText string

	// Err is populated when Kind == EventError.
	Err error
}

// Stream is a pull-based iterator of turn events. Next blocks until the next
// event is available, returns false once the stream is exhausted (after an
// EventFinal or EventError), and must be safe to stop early via the
// context passed to Request.
type Stream interface {
	Next() (Event, bool)
}

// Request describes one turn to run against a specific model.
type Request struct {
	Model        string
	SystemPrompt string
	Prompt       string
	SessionKey   string
	TraceID      string
}

// Driver is the external collaborator the kernel invokes per turn. A real
// implementation wraps a concrete LLM client library; this package never
// imports one.
type Driver interface {
	// Run starts a turn and returns a Stream of events. Cancelling ctx must
	// cause the stream to yield a terminal EventError with a context.Canceled
	// cause at its next checkpoint — the cooperative-cancellation contract
	// the kernel's interruptSession relies on.
	Run(ctx context.Context, req Request) (Stream, error)
}
