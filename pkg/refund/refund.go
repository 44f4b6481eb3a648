// Package refund implements merchant-authorized reversal of a previously
// settled payment.
//
// Preconditions (the intent is settled, not yet refunded, and the signer is
// the original merchant of that intent) are enforced by the caller against
// ledger state, not re-derived here. The ledger remains the arbiter and
// rejects violations regardless.
package refund

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearlane/mandatepay/pkg/codec"
	"github.com/clearlane/mandatepay/pkg/ledger"
	"github.com/clearlane/mandatepay/pkg/money"
	"github.com/clearlane/mandatepay/pkg/protocol"
	"github.com/clearlane/mandatepay/pkg/settle"
	"github.com/clearlane/mandatepay/pkg/signer"
)

// CreateAuthorization signs a refund of amount back to the payer for a
// settled intent. The refund message hash binds (intent_id, merchant, user,
// amount_raw), a distinct tuple shape from the settlement message hash, so
// the two can never share a hash namespace.
func CreateAuthorization(intentID common.Hash, merchant signer.Signer, amount string, payer common.Address) (*protocol.RefundAuthorization, error) {
	amountRaw, err := money.ToRaw(amount)
	if err != nil {
		return nil, &protocol.ValidationError{Field: "amount", Msg: err.Error()}
	}

	digest := MessageHash(intentID, merchant.Address(), payer, amountRaw)

	sig, err := merchant.Sign(digest.Bytes())
	if err != nil {
		return nil, &protocol.SigningError{Role: "merchant", Cause: err}
	}

	return &protocol.RefundAuthorization{
		IntentID:    intentID,
		Merchant:    merchant.Address(),
		User:        payer,
		Amount:      amount,
		AmountRaw:   amountRaw,
		Signature:   sig,
		MessageHash: digest,
		SignedAt:    time.Now().UTC(),
	}, nil
}

// MessageHash is the packed canonical hash over (intent_id, merchant, user,
// amount_raw).
func MessageHash(intentID common.Hash, merchant, user common.Address, amountRaw *big.Int) common.Hash {
	return codec.HashPacked(
		codec.Bytes32(intentID),
		codec.Address(merchant),
		codec.Address(user),
		codec.Uint{V: amountRaw},
	)
}

// Executor submits refund authorizations to one ledger, classifying
// rejections with the same vocabulary as settlement.
type Executor struct {
	ledger     ledger.Ledger
	classifier *settle.Classifier
	log        *slog.Logger
}

// NewExecutor wires a refund executor to a ledger.
func NewExecutor(l ledger.Ledger) *Executor {
	return &Executor{
		ledger:     l,
		classifier: settle.DefaultClassifier(),
		log:        slog.Default().With("component", "refund"),
	}
}

// WithClassifier overrides the rejection-text vocabulary.
func (e *Executor) WithClassifier(c *settle.Classifier) *Executor {
	e.classifier = c
	return e
}

// Execute submits the refund and blocks until the ledger reports a terminal
// outcome. A settled intent refunds at most once; the ledger enforces the
// single-use guarantee.
func (e *Executor) Execute(ctx context.Context, auth *protocol.RefundAuthorization) *protocol.SettlementResult {
	conf, err := e.ledger.Refund(ctx, ledger.RefundRequest{
		IntentID:          auth.IntentID,
		MerchantSignature: auth.Signature,
	})
	if err != nil {
		result := settle.Outcome(e.classifier, err)
		e.log.Warn("refund failed",
			"intent_id", auth.IntentID.Hex(), "reason", string(result.Reason), "error", result.Err)
		return result
	}

	e.log.Info("refund executed",
		"intent_id", auth.IntentID.Hex(), "tx", conf.TxRef, "block", conf.BlockRef)

	return &protocol.SettlementResult{
		Success:   true,
		TxRef:     conf.TxRef,
		BlockRef:  conf.BlockRef,
		GasUsed:   conf.GasUsed,
		Event:     settle.ExtractEvent(conf, ledger.EventRefundExecuted),
		Timestamp: time.Now().UTC(),
	}
}
