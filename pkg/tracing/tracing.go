// Package tracing provides the opt-in tracing hook the dispatcher runs
// sub-queries under (spec §4.4, Design Note 9: "a capability-typed
// collaborator; when disabled, all span starts are no-ops with no
// branching in the hot path").
package tracing

import "context"

// Span is an active unit of tracing work. Finish must be called exactly
// once.
type Span interface {
	Finish()
}

// Tracer starts spans. Parentage flows through ctx: StartSpan returns the
// context a child span should be started from.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}

// noop is the null Tracer: every call is free and carries no branching in
// callers, so dispatch.go never needs an `if tracingEnabled` check.
type noop struct{}

// Noop is the default Tracer used when tracing_enabled is false.
var Noop Tracer = noop{}

type noopSpan struct{}

func (noopSpan) Finish() {}

func (noop) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}
