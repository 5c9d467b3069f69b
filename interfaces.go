package x402

import "context"

// SchemeNetworkClient is implemented by client-side payment mechanisms.
// A mechanism turns exactly one PaymentRequirements into a signed proof.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, requirements PaymentRequirements) (PaymentProof, error)
}

// TransitionSink receives every FetchState transition of every call.
// Implementations must not block; wrap slow sinks with NewAsyncSink.
type TransitionSink interface {
	OnTransition(t StateTransition)
}

// TransitionSinkFunc adapts a function to a TransitionSink.
type TransitionSinkFunc func(t StateTransition)

func (f TransitionSinkFunc) OnTransition(t StateTransition) {
	f(t)
}
