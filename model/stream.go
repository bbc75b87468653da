package model

import (
	"iter"
	"strings"
)

// EventKind tags a StreamEvent.
type EventKind int

const (
	EventStarted EventKind = iota
	EventContentDelta
	EventToolCall
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventContentDelta:
		return "content_delta"
	case EventToolCall:
		return "tool_call"
	case EventFinished:
		return "finished"
	case EventFailed:
		return "failed"
	}
	return "unknown"
}

// StreamEvent is one item of a streaming response. Exactly one of Delta,
// ToolCall or Err is meaningful depending on Kind.
type StreamEvent struct {
	Kind     EventKind
	Delta    string
	ToolCall *ToolCall
	Usage    *Usage
	Err      error
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventFinished || e.Kind == EventFailed
}

func Started() StreamEvent { return StreamEvent{Kind: EventStarted} }
func ContentDelta(s string) StreamEvent { return StreamEvent{Kind: EventContentDelta, Delta: s} }
func ToolCallEvent(tc ToolCall) StreamEvent {
	return StreamEvent{Kind: EventToolCall, ToolCall: &tc}
}
func Finished(u *Usage) StreamEvent { return StreamEvent{Kind: EventFinished, Usage: u} }
func Failed(err error) StreamEvent { return StreamEvent{Kind: EventFailed, Err: err} }

// Collect drains a stream into a ChatResponse. The returned error is the
// Failed event's error, if any; content received before the failure is kept.
func Collect(seq iter.Seq[StreamEvent]) (*ChatResponse, error) {
	var (
		b    strings.Builder
		resp ChatResponse
		err  error
	)
	for ev := range seq {
		switch ev.Kind {
		case EventContentDelta:
			b.WriteString(ev.Delta)
		case EventToolCall:
			resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
		case EventFinished:
			if ev.Usage != nil {
				resp.Usage = *ev.Usage
			}
		case EventFailed:
			err = ev.Err
		}
	}
	resp.Content = b.String()
	return &resp, err
}
