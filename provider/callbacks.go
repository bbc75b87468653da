package provider

import (
	"context"

	"chatdesk/model"
)

// Callbacks is the push-style view of a stream. Nil hooks are skipped.
type Callbacks struct {
	OnStart    func()
	OnContent  func(delta string)
	OnToolCall func(call model.ToolCall)
	OnFinish   func(usage *model.Usage)
	OnError    func(err error)
}

// StreamWithCallbacks drives svc.StreamMessage and dispatches each event to
// the matching hook, in order. It returns when the stream ends or ctx is
// cancelled; cancellation calls neither OnFinish nor OnError.
func StreamWithCallbacks(ctx context.Context, svc model.ChatService, messages []model.Message, opts model.ChatOptions, cb Callbacks) {
	for ev := range svc.StreamMessage(ctx, messages, opts) {
		switch ev.Kind {
		case model.EventStarted:
			if cb.OnStart != nil {
				cb.OnStart()
			}
		case model.EventContentDelta:
			if cb.OnContent != nil {
				cb.OnContent(ev.Delta)
			}
		case model.EventToolCall:
			if cb.OnToolCall != nil {
				cb.OnToolCall(*ev.ToolCall)
			}
		case model.EventFinished:
			if cb.OnFinish != nil {
				cb.OnFinish(ev.Usage)
			}
		case model.EventFailed:
			if cb.OnError != nil {
				cb.OnError(ev.Err)
			}
		}
	}
}
