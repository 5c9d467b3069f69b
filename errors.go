package x402

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeInvalidRequirements = "invalid_requirements"
	ErrCodeUnsupportedScheme   = "unsupported_scheme"
	ErrCodeUnsupportedNetwork  = "unsupported_network"
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Sentinel errors a wallet or signer callback can return.
var (
	ErrSignerUnavailable = errors.New("signer unavailable")
	ErrUserRejected      = errors.New("user rejected signing request")
)

// SigningFailure classifies why a scheme signer could not produce a proof.
type SigningFailure string

const (
	SigningUnavailable        SigningFailure = "unavailable"
	SigningUnsupportedNetwork SigningFailure = "unsupported_network"
	SigningUserRejected       SigningFailure = "user_rejected"
	SigningFailed             SigningFailure = "failed"
)

// SigningError is returned when a SchemeNetworkClient fails to sign.
type SigningError struct {
	Reason  SigningFailure
	Network Network
	Err     error
}

func (e *SigningError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("signing %s on %s", e.Reason, e.Network)
	}
	return fmt.Sprintf("signing %s on %s: %v", e.Reason, e.Network, e.Err)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// NewSigningError classifies err into a SigningError. Errors that already are
// a SigningError are returned unchanged.
func NewSigningError(network Network, err error) *SigningError {
	var signErr *SigningError
	if errors.As(err, &signErr) {
		return signErr
	}

	reason := SigningFailed
	switch {
	case errors.Is(err, ErrSignerUnavailable):
		reason = SigningUnavailable
	case errors.Is(err, ErrUserRejected):
		reason = SigningUserRejected
	}

	var payErr *PaymentError
	if errors.As(err, &payErr) && payErr.Code == ErrCodeUnsupportedNetwork {
		reason = SigningUnsupportedNetwork
	}

	return &SigningError{Reason: reason, Network: network, Err: err}
}

// ErrorKind is the protocol-level error taxonomy.
type ErrorKind string

const (
	ErrKindNetwork                 ErrorKind = "network_error"
	ErrKindValidation              ErrorKind = "validation_error"
	ErrKindSigning                 ErrorKind = "signing_error"
	ErrKindPaymentAlreadyAttempted ErrorKind = "payment_already_attempted"
	ErrKindNoSupportedScheme       ErrorKind = "no_supported_scheme"
	ErrKindCancelled               ErrorKind = "cancelled"
)

// ProtocolError is returned by every failing step of a paid fetch. State is
// the protocol step that was executing when the failure occurred.
type ProtocolError struct {
	Kind    ErrorKind
	State   FetchState
	Message string
	Err     error
}

// NewProtocolError creates a new protocol error
func NewProtocolError(kind ErrorKind, state FetchState, message string, err error) *ProtocolError {
	return &ProtocolError{
		Kind:    kind,
		State:   state,
		Message: message,
		Err:     err,
	}
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("x402 %s at %s", e.Kind, e.State)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a caller may reasonably try the same call again.
// Only transport failures and cancellations qualify.
func (e *ProtocolError) Retryable() bool {
	return e.Kind == ErrKindNetwork || e.Kind == ErrKindCancelled
}

// IsKind reports whether err is a ProtocolError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr) && protoErr.Kind == kind
}
