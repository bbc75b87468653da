package provider

import (
	"context"
	"iter"

	"chatdesk/model"
)

// emitFunc hands one event to the consumer. It returns false once the
// consumer has stopped or the context is cancelled; producers must stop
// reading and return promptly when that happens.
type emitFunc func(model.StreamEvent) bool

// produceFunc talks to the vendor, emitting content and tool-call events, and
// returns usage (optional) plus the error that ended the stream, if any.
type produceFunc func(ctx context.Context, emit emitFunc) (*model.Usage, error)

// newStream wraps a producer in the event-ordering contract every adapter
// shares:
//
//   - Started is yielded once, before the request is sent
//   - empty content deltas are dropped
//   - exactly one Finished or Failed ends the sequence
//   - after cancellation nothing more is yielded, not even a terminal event
//
// The derived context is cancelled when the consumer stops early so the
// producer's HTTP body or SDK stream is released.
func newStream(ctx context.Context, providerID string, produce produceFunc) iter.Seq[model.StreamEvent] {
	return func(yield func(model.StreamEvent) bool) {
		if ctx.Err() != nil {
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		if !yield(model.Started()) {
			return
		}

		stopped := false
		emit := func(ev model.StreamEvent) bool {
			if stopped {
				return false
			}
			if ctx.Err() != nil {
				stopped = true
				return false
			}
			if ev.Kind == model.EventContentDelta && ev.Delta == "" {
				return true
			}
			if !yield(ev) {
				stopped = true
				cancel()
				return false
			}
			return true
		}

		usage, err := produce(ctx, emit)
		if stopped || ctx.Err() != nil || isCanceled(err) {
			return
		}
		if err != nil {
			yield(model.Failed(streamError(providerID, err)))
			return
		}
		yield(model.Finished(usage))
	}
}

// failedStream yields Started then Failed. Adapters use it when a request
// cannot even be built.
func failedStream(ctx context.Context, providerID string, err error) iter.Seq[model.StreamEvent] {
	return newStream(ctx, providerID, func(context.Context, emitFunc) (*model.Usage, error) {
		return nil, err
	})
}
