// Package settle submits authorizations to the external ledger and interprets
// the terminal outcome.
//
// The executor performs no hashing or signature checks of its own; that is
// the verifier's responsibility. Its job is message assembly, submission and
// outcome interpretation, including best-effort classification of rejection
// text into a fixed set of reasons.
package settle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clearlane/mandatepay/pkg/ledger"
	"github.com/clearlane/mandatepay/pkg/protocol"
)

// Executor redeems authorizations against one ledger.
type Executor struct {
	ledger     ledger.Ledger
	classifier *Classifier
	log        *slog.Logger
}

// NewExecutor wires an executor to a ledger with the default rejection
// vocabulary.
func NewExecutor(l ledger.Ledger) *Executor {
	return &Executor{
		ledger:     l,
		classifier: DefaultClassifier(),
		log:        slog.Default().With("component", "settle"),
	}
}

// WithClassifier overrides the rejection-text vocabulary.
func (e *Executor) WithClassifier(c *Classifier) *Executor {
	e.classifier = c
	return e
}

// WithLogger overrides the executor logger.
func (e *Executor) WithLogger(log *slog.Logger) *Executor {
	e.log = log.With("component", "settle")
	return e
}

// Classifier exposes the active rejection vocabulary, shared with the refund
// execution path.
func (e *Executor) Classifier() *Classifier { return e.classifier }

// Settle submits the full authorization tuple and blocks until the ledger
// reports a terminal outcome. Failure is a first-class result, never an
// error: rejections come back as an unsuccessful SettlementResult carrying
// the raw text and its classified reason. Nothing is retried here; retry
// policy (re-fetch nonce, re-sign) belongs to the caller.
func (e *Executor) Settle(ctx context.Context, auth *protocol.Authorization) *protocol.SettlementResult {
	conf, err := e.ledger.Settle(ctx, ledger.SettleRequest{
		IntentID:    auth.IntentID,
		User:        auth.User,
		Merchant:    auth.Merchant,
		AmountRaw:   auth.AmountRaw,
		MandateHash: auth.MandateHash,
		Expiry:      auth.Expiry,
		Signature:   auth.UserSignature,
	})
	if err != nil {
		return e.failure(auth.IntentID.Hex(), err)
	}

	result := &protocol.SettlementResult{
		Success:   true,
		TxRef:     conf.TxRef,
		BlockRef:  conf.BlockRef,
		GasUsed:   conf.GasUsed,
		Event:     ExtractEvent(conf, ledger.EventSettlementExecuted),
		Timestamp: time.Now().UTC(),
	}
	if result.Event == nil {
		// Confirmed but the event is absent: a valid partial-success terminal
		// state, surfaced rather than hidden.
		e.log.Warn("settlement confirmed without confirmation event",
			"intent_id", auth.IntentID.Hex(), "tx", conf.TxRef)
	} else {
		e.log.Info("settlement executed",
			"intent_id", auth.IntentID.Hex(),
			"tx", conf.TxRef,
			"block", conf.BlockRef,
			"gas_used", conf.GasUsed)
	}
	return result
}

func (e *Executor) failure(intentID string, err error) *protocol.SettlementResult {
	result := Outcome(e.classifier, err)
	e.log.Warn("settlement failed",
		"intent_id", intentID, "reason", string(result.Reason), "error", result.Err)
	return result
}

// Outcome converts a ledger error into an unsuccessful result, classifying
// rejection text with c. Transport faults keep the fallback reason. Shared
// with the refund execution path.
func Outcome(c *Classifier, err error) *protocol.SettlementResult {
	result := &protocol.SettlementResult{
		Err:       err.Error(),
		Reason:    protocol.ReasonSettlementFailed,
		Timestamp: time.Now().UTC(),
	}
	var rej *ledger.Rejection
	if errors.As(err, &rej) {
		result.Reason = c.Classify(rej.Text)
	}
	return result
}

// ExtractEvent pulls the first event with the given name out of a
// confirmation, or nil if absent.
func ExtractEvent(conf *ledger.Confirmation, name string) *protocol.SettlementEvent {
	for _, ev := range conf.Events {
		if ev.Name != name {
			continue
		}
		return &protocol.SettlementEvent{
			IntentID:    ev.IntentID,
			User:        ev.User,
			Merchant:    ev.Merchant,
			Amount:      ev.Amount,
			MandateHash: ev.MandateHash,
		}
	}
	return nil
}
