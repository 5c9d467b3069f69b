package logger

import (
	x402 "github.com/x402-foundation/x402fetch"
)

type transitionSink struct {
	log Logger
}

// NewTransitionSink logs every FetchState transition. Failed transitions are
// logged at warn, final ones at info, everything else at debug.
func NewTransitionSink(log Logger) x402.TransitionSink {
	if log == nil {
		log = NoopLogger{}
	}
	return &transitionSink{log: log}
}

func (s *transitionSink) OnTransition(t x402.StateTransition) {
	fields := map[string]any{
		"call_id":    t.CallID,
		"url":        t.URL,
		"from":       t.From.String(),
		"to":         t.To.String(),
		"elapsed_ms": t.Elapsed.Milliseconds(),
	}
	if t.Network != "" {
		fields["network"] = string(t.Network)
	}
	if t.Amount != "" {
		fields["amount"] = t.Amount
	}

	switch {
	case t.Err != nil:
		fields["error"] = t.Err
		s.log.Warn("x402 transition failed", fields)
	case t.Final:
		s.log.Info("x402 call finished", fields)
	default:
		s.log.Debug("x402 transition", fields)
	}
}
