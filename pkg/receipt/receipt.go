// Package receipt turns settlement outcomes into immutable, inspectable audit
// records.
//
// Builders are pure: no network, no signing, no clock beyond a timestamp.
// Each receipt carries a canonical-JSON digest so an auditor can detect
// after-the-fact mutation of a stored record.
package receipt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"

	"github.com/clearlane/mandatepay/pkg/money"
	"github.com/clearlane/mandatepay/pkg/protocol"
)

// Status of a settlement attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// UnknownIntent substitutes for a missing intent identity on failure
// receipts.
const UnknownIntent = "UNKNOWN"

// Network describes the ledger a receipt refers to.
type Network struct {
	Name              string `json:"name"`
	ChainID           int64  `json:"chain_id"`
	TokenContract     string `json:"token_contract,omitempty"`
	ProcessorContract string `json:"processor_contract,omitempty"`
	RegistryContract  string `json:"registry_contract,omitempty"`
}

// Receipt is the append-only audit record of one settlement attempt. One
// receipt exists per attempt, success or failure.
type Receipt struct {
	ReceiptID           string    `json:"receipt_id"`
	IntentID            string    `json:"intent_id"`
	Network             Network   `json:"network"`
	User                string    `json:"user,omitempty"`
	Merchant            string    `json:"merchant,omitempty"`
	AuthorizedAmount    string    `json:"authorized_amount,omitempty"`
	AmountRaw           string    `json:"amount_raw,omitempty"`
	MandateHash         string    `json:"mandate_hash,omitempty"`
	AuthorizedSignature string    `json:"authorized_signature,omitempty"`
	SettlementTx        string    `json:"settlement_tx,omitempty"`
	BlockNumber         uint64    `json:"block_number,omitempty"`
	GasUsed             uint64    `json:"gas_used,omitempty"`
	Status              Status    `json:"status"`
	FailureReason       string    `json:"failure_reason,omitempty"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	Digest              string    `json:"digest,omitempty"`
}

// Builder constructs receipts for one network.
type Builder struct {
	net Network
	now func() time.Time
}

// NewBuilder returns a builder stamping receipts with the given network.
func NewBuilder(net Network) *Builder {
	return &Builder{net: net, now: time.Now}
}

// WithClock overrides the clock for testing.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// BuildSuccess records a confirmed settlement. The authorized amount is the
// raw-to-decimal conversion at the fixed scale, independent of the display
// string the buyer saw.
func (b *Builder) BuildSuccess(auth *protocol.Authorization, result *protocol.SettlementResult) (*Receipt, error) {
	if auth == nil || result == nil {
		return nil, fmt.Errorf("receipt: success receipt requires authorization and result")
	}
	if !result.Success {
		return nil, fmt.Errorf("receipt: success receipt from unsuccessful result")
	}

	r := &Receipt{
		ReceiptID:           uuid.NewString(),
		IntentID:            auth.IntentID.Hex(),
		Network:             b.net,
		User:                auth.User.Hex(),
		Merchant:            auth.Merchant.Hex(),
		AuthorizedAmount:    money.FromRaw(auth.AmountRaw),
		AmountRaw:           auth.AmountRaw.String(),
		MandateHash:         auth.MandateHash.Hex(),
		AuthorizedSignature: auth.UserSignature.String(),
		SettlementTx:        result.TxRef,
		BlockNumber:         result.BlockRef,
		GasUsed:             result.GasUsed,
		Status:              StatusSuccess,
		Timestamp:           b.now().UTC(),
	}
	return seal(r)
}

// BuildFailure records a failed attempt. The authorization may be partially
// populated (or nil entirely) when the sequence aborted before later steps;
// missing fields are substituted, never fatal. Failure is an auditable
// outcome, not a silent abort.
func (b *Builder) BuildFailure(auth *protocol.Authorization, reason protocol.FailureReason, errMsg string) (*Receipt, error) {
	r := &Receipt{
		ReceiptID:     uuid.NewString(),
		IntentID:      UnknownIntent,
		Network:       b.net,
		Status:        StatusFailed,
		FailureReason: string(reason),
		ErrorMessage:  errMsg,
		Timestamp:     b.now().UTC(),
	}
	if auth != nil {
		if auth.IntentID != (common.Hash{}) {
			r.IntentID = auth.IntentID.Hex()
		}
		if auth.User != (common.Address{}) {
			r.User = auth.User.Hex()
		}
		if auth.Merchant != (common.Address{}) {
			r.Merchant = auth.Merchant.Hex()
		}
		if auth.AmountRaw != nil {
			r.AuthorizedAmount = money.FromRaw(auth.AmountRaw)
			r.AmountRaw = auth.AmountRaw.String()
		} else if auth.Amount != "" {
			r.AuthorizedAmount = auth.Amount
		}
		if auth.MandateHash != (common.Hash{}) {
			r.MandateHash = auth.MandateHash.Hex()
		}
		if len(auth.UserSignature) > 0 {
			r.AuthorizedSignature = auth.UserSignature.String()
		}
	}
	return seal(r)
}

// seal computes the canonical digest over the receipt body.
func seal(r *Receipt) (*Receipt, error) {
	digest, err := Digest(r)
	if err != nil {
		return nil, err
	}
	r.Digest = digest
	return r, nil
}

// Digest returns the SHA-256 hex digest of the receipt's RFC 8785 canonical
// JSON form, excluding the digest field itself. Recomputing it over a stored
// receipt detects mutation.
func Digest(r *Receipt) (string, error) {
	body := *r
	body.Digest = ""
	raw, err := json.Marshal(&body)
	if err != nil {
		return "", fmt.Errorf("receipt: marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("receipt: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest and reports whether the receipt is unmodified.
func Verify(r *Receipt) (bool, error) {
	digest, err := Digest(r)
	if err != nil {
		return false, err
	}
	return digest == r.Digest, nil
}
