// Package mandate implements the merchant's signed commitment to intent
// terms.
package mandate

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearlane/mandatepay/pkg/codec"
	"github.com/clearlane/mandatepay/pkg/money"
	"github.com/clearlane/mandatepay/pkg/protocol"
	"github.com/clearlane/mandatepay/pkg/signer"
)

// Create computes the mandate hash over the intent terms and signs it with
// the merchant's key. The merchant identity recorded on the mandate is the
// signer's address. Expiry is not checked here; it is enforced downstream at
// authorization and settlement time.
func Create(it *protocol.Intent, merchant signer.Signer) (*protocol.Mandate, error) {
	hash, err := Hash(it.IntentID, merchant.Address(), it.Amount, it.Currency, it.Expiry)
	if err != nil {
		return nil, err
	}

	sig, err := merchant.Sign(hash.Bytes())
	if err != nil {
		return nil, &protocol.SigningError{Role: "merchant", Cause: err}
	}

	return &protocol.Mandate{
		IntentID:          it.IntentID,
		Merchant:          merchant.Address(),
		Amount:            it.Amount,
		Currency:          it.Currency,
		Expiry:            it.Expiry,
		MandateHash:       hash,
		MerchantSignature: sig,
		SignedAt:          time.Now().UTC(),
	}, nil
}

// Hash is the padded canonical hash binding the mandate terms. The amount is
// encoded as the raw fixed-point integer, never the decimal string.
func Hash(intentID common.Hash, merchant common.Address, amount, currency string, expiry int64) (common.Hash, error) {
	raw, err := money.ToRaw(amount)
	if err != nil {
		return common.Hash{}, &protocol.ValidationError{Field: "amount", Msg: err.Error()}
	}
	return codec.HashPadded(
		codec.Bytes32(intentID),
		codec.Address(merchant),
		codec.Uint{V: raw},
		codec.String(currency),
		codec.Uint64(uint64(expiry)),
	)
}

// Verify recomputes the mandate hash from the claimed terms and checks the
// merchant signature against the claimed merchant identity. Every consumer of
// a mandate must call this before relying on it.
func Verify(m *protocol.Mandate) error {
	hash, err := Hash(m.IntentID, m.Merchant, m.Amount, m.Currency, m.Expiry)
	if err != nil {
		return err
	}
	if hash != m.MandateHash {
		return fmt.Errorf("mandate: hash mismatch: computed %s, claimed %s", hash, m.MandateHash)
	}
	recovered, err := signer.Recover(hash.Bytes(), m.MerchantSignature)
	if err != nil {
		return fmt.Errorf("mandate: %w", err)
	}
	if recovered != m.Merchant {
		return fmt.Errorf("mandate: signature recovers to %s, not claimed merchant %s", recovered, m.Merchant)
	}
	return nil
}
