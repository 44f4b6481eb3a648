package protocol

import "fmt"

// FailureReason classifies why a settlement or refund submission was
// rejected. Derived from the ledger's rejection text, never from local
// judgment.
type FailureReason string

const (
	ReasonAuthorizationExpired FailureReason = "AUTHORIZATION_EXPIRED"
	ReasonInvalidSignature     FailureReason = "INVALID_SIGNATURE"
	ReasonReplayPrevented      FailureReason = "REPLAY_ATTACK_PREVENTED"
	ReasonInsufficientFunds    FailureReason = "INSUFFICIENT_ALLOWANCE_OR_BALANCE"
	// ReasonSettlementFailed is the fallback when no known rejection pattern
	// matches.
	ReasonSettlementFailed FailureReason = "SETTLEMENT_FAILED"
)

// ValidationError reports malformed input. Always raised before any signing.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// SigningError reports an unavailable signer or an explicit decline.
// Terminal: it produces a "not authorized" outcome and is never retried
// automatically. Declined distinguishes a user's first-class rejection from a
// broken signer.
type SigningError struct {
	Role     string // "merchant" or "user"
	Declined bool
	Cause    error
}

func (e *SigningError) Error() string {
	if e.Declined {
		return fmt.Sprintf("signing: %s declined authorization", e.Role)
	}
	return fmt.Sprintf("signing: %s signer failed: %v", e.Role, e.Cause)
}

func (e *SigningError) Unwrap() error { return e.Cause }
