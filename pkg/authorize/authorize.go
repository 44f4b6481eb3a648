// Package authorize implements the security checkpoint: it binds an intent, a
// verified mandate and a freshly fetched anti-replay nonce into one message
// and obtains the buyer's signature over it.
package authorize

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearlane/mandatepay/pkg/codec"
	"github.com/clearlane/mandatepay/pkg/mandate"
	"github.com/clearlane/mandatepay/pkg/money"
	"github.com/clearlane/mandatepay/pkg/protocol"
	"github.com/clearlane/mandatepay/pkg/signer"
)

// NonceSource reads the ledger's per-user replay counter.
type NonceSource interface {
	CurrentNonce(ctx context.Context, user common.Address) (uint64, error)
}

// Checkpoint produces authorizations against one nonce source.
type Checkpoint struct {
	nonces NonceSource
	log    *slog.Logger
}

// NewCheckpoint wires the checkpoint to the ledger's nonce counter.
func NewCheckpoint(nonces NonceSource) *Checkpoint {
	return &Checkpoint{
		nonces: nonces,
		log:    slog.Default().With("component", "authorize"),
	}
}

// WithLogger overrides the checkpoint logger.
func (c *Checkpoint) WithLogger(log *slog.Logger) *Checkpoint {
	c.log = log.With("component", "authorize")
	return c
}

// Authorize validates the mandate against the intent, converts the display
// amount to its raw form, fetches the user's current nonce, computes the
// packed message hash and obtains the user's signature over it.
//
// The nonce read happens after all local validation so it sits as close to
// signing (and eventual submission) as possible: any authorization for the
// same user that settles in between invalidates this one, and callers should
// treat that as a race to retry with a fresh nonce, not a bug.
//
// An explicit decline by the user surfaces as *protocol.SigningError with
// Declined set, a terminal "not authorized" outcome distinct from a
// malformed request.
func (c *Checkpoint) Authorize(ctx context.Context, it *protocol.Intent, m *protocol.Mandate, user signer.Signer) (*protocol.Authorization, error) {
	if m.IntentID != it.IntentID {
		return nil, &protocol.ValidationError{Field: "mandate.intent_id", Msg: "mandate does not reference this intent"}
	}
	if err := mandate.Verify(m); err != nil {
		return nil, err
	}

	amountRaw, err := money.ToRaw(it.Amount)
	if err != nil {
		return nil, &protocol.ValidationError{Field: "amount", Msg: err.Error()}
	}

	nonce, err := c.nonces.CurrentNonce(ctx, user.Address())
	if err != nil {
		return nil, err
	}

	digest := MessageHash(it.IntentID, user.Address(), m.Merchant, amountRaw, m.MandateHash, it.Expiry, nonce)

	sig, err := user.Sign(digest.Bytes())
	if err != nil {
		serr := &protocol.SigningError{Role: "user", Cause: err}
		if errors.Is(err, signer.ErrDeclined) {
			serr.Declined = true
			c.log.Warn("authorization declined by user",
				"intent_id", it.IntentID.Hex(), "user", user.Address().Hex())
		}
		return nil, serr
	}

	c.log.Info("authorization captured",
		"intent_id", it.IntentID.Hex(),
		"user", user.Address().Hex(),
		"merchant", m.Merchant.Hex(),
		"amount", it.Amount,
		"nonce", nonce)

	return &protocol.Authorization{
		IntentID:      it.IntentID,
		User:          user.Address(),
		Merchant:      m.Merchant,
		Amount:        it.Amount,
		AmountRaw:     amountRaw,
		MandateHash:   m.MandateHash,
		Expiry:        it.Expiry,
		Nonce:         nonce,
		UserSignature: sig,
		MessageHash:   digest,
		AuthorizedAt:  time.Now().UTC(),
	}, nil
}

// MessageHash is the packed canonical hash over (intent_id, user, merchant,
// amount_raw, mandate_hash, expiry, nonce). Field order and typing match what
// the external verifier recomputes; changing either breaks the protocol.
func MessageHash(intentID common.Hash, user, merchant common.Address, amountRaw *big.Int, mandateHash common.Hash, expiry int64, nonce uint64) common.Hash {
	return codec.HashPacked(
		codec.Bytes32(intentID),
		codec.Address(user),
		codec.Address(merchant),
		codec.Uint{V: amountRaw},
		codec.Bytes32(mandateHash),
		codec.Uint64(uint64(expiry)),
		codec.Uint64(nonce),
	)
}
