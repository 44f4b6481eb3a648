// Package protocol defines the immutable artifacts exchanged during a payment
// authorization and settlement sequence, and the error taxonomy shared by
// every component.
//
// Data flows strictly forward, from Intent through Mandate, Authorization and
// Settlement to Receipt, with Refund as a later branch keyed by intent
// identity. Each artifact is created once by its producing component and
// never mutated.
package protocol

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Intent is the buyer's declared desire to pay a merchant for a product,
// before any commitment. IntentID is an opaque correlation handle unique
// within a process, not a secret.
type Intent struct {
	IntentID  common.Hash    `json:"intent_id"`
	ProductID string         `json:"product_id"`
	Amount    string         `json:"amount"`
	Currency  string         `json:"currency"`
	Merchant  common.Address `json:"merchant"`
	Expiry    int64          `json:"expiry"`
	CreatedAt time.Time      `json:"created_at"`
}

// Mandate is the merchant's signed commitment to intent terms. MandateHash is
// the padded canonical hash over (intent_id, merchant, amount_raw, currency,
// expiry); every later consumer must recompute and match it, and the
// signature must verify against the claimed merchant identity.
type Mandate struct {
	IntentID          common.Hash    `json:"intent_id"`
	Merchant          common.Address `json:"merchant"`
	Amount            string         `json:"amount"`
	Currency          string         `json:"currency"`
	Expiry            int64          `json:"expiry"`
	MandateHash       common.Hash    `json:"mandate_hash"`
	MerchantSignature hexutil.Bytes  `json:"merchant_signature"`
	SignedAt          time.Time      `json:"signed_at"`
}

// Authorization is the buyer's signed, nonce-bound approval to redeem a
// mandate. MessageHash is the packed canonical hash over (intent_id, user,
// merchant, amount_raw, mandate_hash, expiry, nonce); it is valid only while
// Expiry is in the future and Nonce still equals the ledger's counter for
// User. Consumed exactly once by the settlement executor.
type Authorization struct {
	IntentID      common.Hash    `json:"intent_id"`
	User          common.Address `json:"user"`
	Merchant      common.Address `json:"merchant"`
	Amount        string         `json:"amount"`
	AmountRaw     *big.Int       `json:"amount_raw"`
	MandateHash   common.Hash    `json:"mandate_hash"`
	Expiry        int64          `json:"expiry"`
	Nonce         uint64         `json:"nonce"`
	UserSignature hexutil.Bytes  `json:"user_signature"`
	MessageHash   common.Hash    `json:"message_hash"`
	AuthorizedAt  time.Time      `json:"authorized_at"`
}

// SettlementEvent carries the fields extracted from the ledger's
// settlement-confirmation event.
type SettlementEvent struct {
	IntentID    common.Hash    `json:"intent_id"`
	User        common.Address `json:"user"`
	Merchant    common.Address `json:"merchant"`
	Amount      *big.Int       `json:"amount"`
	MandateHash common.Hash    `json:"mandate_hash"`
}

// SettlementResult is the terminal outcome of a settlement or refund
// submission. Never mutated after creation. Event may be nil on success if
// the confirmation event was absent; that is a valid terminal state, not an
// error.
type SettlementResult struct {
	Success   bool             `json:"success"`
	TxRef     string           `json:"tx_reference,omitempty"`
	BlockRef  uint64           `json:"block_reference,omitempty"`
	GasUsed   uint64           `json:"gas_used,omitempty"`
	Event     *SettlementEvent `json:"event_data,omitempty"`
	Err       string           `json:"error,omitempty"`
	Reason    FailureReason    `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RefundAuthorization is the merchant's signed approval to reverse a settled
// payment. MessageHash is the packed canonical hash over (intent_id,
// merchant, user, amount_raw), a distinct tuple shape from the settlement
// message hash. Consumed once; a settled intent refunds at most once.
type RefundAuthorization struct {
	IntentID    common.Hash    `json:"intent_id"`
	Merchant    common.Address `json:"merchant"`
	User        common.Address `json:"user"`
	Amount      string         `json:"amount"`
	AmountRaw   *big.Int       `json:"amount_raw"`
	Signature   hexutil.Bytes  `json:"signature"`
	MessageHash common.Hash    `json:"message_hash"`
	SignedAt    time.Time      `json:"signed_at"`
}
