// Package ledger defines the settlement verifier interface this protocol
// redeems authorizations against, and an in-memory simulation of it.
//
// The external ledger is the sole arbiter of truth for nonce state,
// settlement-executed state and refund-executed state. This core never caches
// or locally enforces those invariants beyond best-effort pre-checks.
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event names emitted on confirmation.
const (
	EventSettlementExecuted = "SettlementExecuted"
	EventRefundExecuted     = "RefundExecuted"
)

// SettleRequest is the full authorization tuple submitted to the settlement
// entry point. The verifier recomputes the message hash from these fields and
// its own stored nonce; the claimed nonce is deliberately not part of the
// request.
type SettleRequest struct {
	IntentID    common.Hash
	User        common.Address
	Merchant    common.Address
	AmountRaw   *big.Int
	MandateHash common.Hash
	Expiry      int64
	Signature   []byte
}

// RefundRequest reverses a settled intent. The verifier reconstructs the
// refund message from its settlement record, so only the intent identity and
// the merchant's signature travel.
type RefundRequest struct {
	IntentID          common.Hash
	MerchantSignature []byte
}

// Event is a confirmation event emitted by the verifier.
type Event struct {
	Name        string
	IntentID    common.Hash
	User        common.Address
	Merchant    common.Address
	Amount      *big.Int
	MandateHash common.Hash
}

// Confirmation is a terminal accepted outcome.
type Confirmation struct {
	TxRef    string
	BlockRef uint64
	GasUsed  uint64
	Events   []Event
}

// Rejection is a terminal rejected outcome. Text is the verifier's raw revert
// phrase; the settlement executor classifies it, this package does not.
type Rejection struct {
	Text string
}

func (r *Rejection) Error() string { return "ledger: rejected: " + r.Text }

// Ledger is the external settlement verifier. All calls block until the
// ledger reports a terminal outcome; cancellation is governed by ctx alone.
type Ledger interface {
	// CurrentNonce returns the per-user replay counter.
	CurrentNonce(ctx context.Context, user common.Address) (uint64, error)

	// Settle redeems an authorization. A *Rejection error carries the revert
	// text; any other error is a transport fault.
	Settle(ctx context.Context, req SettleRequest) (*Confirmation, error)

	// Refund reverses a previously settled intent under merchant signature.
	Refund(ctx context.Context, req RefundRequest) (*Confirmation, error)
}
