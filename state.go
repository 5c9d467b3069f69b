package x402

import "time"

// FetchState tracks how far a paid fetch progressed.
type FetchState int

const (
	StateInitialRequest FetchState = iota
	StatePriceChecked
	StatePaymentRequired
	StatePaymentCreated
	StatePaymentFailed
	StatePaymentAlreadyAttempted
	StateSettled
	StateError
)

var fetchStateNames = map[FetchState]string{
	StateInitialRequest:          "InitialRequest",
	StatePriceChecked:            "PriceChecked",
	StatePaymentRequired:         "PaymentRequired",
	StatePaymentCreated:          "PaymentCreated",
	StatePaymentFailed:           "PaymentFailed",
	StatePaymentAlreadyAttempted: "PaymentAlreadyAttempted",
	StateSettled:                 "Settled",
	StateError:                   "Error",
}

func (s FetchState) String() string {
	if name, ok := fetchStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsTerminal reports whether no further transition can follow s.
func (s FetchState) IsTerminal() bool {
	switch s {
	case StatePaymentFailed, StatePaymentAlreadyAttempted, StateSettled, StateError:
		return true
	}
	return false
}

// StateTransition describes one step of a paid fetch.
type StateTransition struct {
	CallID  string
	URL     string
	From    FetchState
	To      FetchState
	Network Network
	Amount  string
	Err     error
	At      time.Time
	// Elapsed is the time since the call started.
	Elapsed time.Duration
	// Final is set on the last transition of a call. A free resource ends
	// with a final transition into StateInitialRequest.
	Final bool
}
