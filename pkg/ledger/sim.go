package ledger

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clearlane/mandatepay/pkg/codec"
	"github.com/clearlane/mandatepay/pkg/signer"
)

// Revert phrases used by the simulated verifier. They mirror the external
// contract's vocabulary so classification behaves identically against either.
const (
	revertExpired         = "authorization expired"
	revertAlreadyExecuted = "intent already executed"
	revertBadSignature    = "invalid signature"
	revertInsufficient    = "transfer failed: insufficient balance or allowance"
	revertNotSettled      = "intent not settled"
	revertAlreadyRefunded = "intent already refunded"
	revertBadMerchantSig  = "invalid merchant signature"
	revertRefundTransfer  = "refund transfer failed: insufficient balance"
)

const (
	settleGas = 84_000
	refundGas = 42_000
)

// SettlementRecord is what the verifier remembers about an executed
// settlement; refunds are reconstructed from it.
type SettlementRecord struct {
	User        common.Address
	Merchant    common.Address
	Amount      *big.Int
	MandateHash common.Hash
}

// Simulated is an in-memory verifier with the full protocol semantics:
// per-user nonces, token balances with a processor allowance, single-shot
// settlement and refund per intent, and confirmation events. It recomputes
// every message hash and recovers every signature independently of the
// signing side.
type Simulated struct {
	mu         sync.Mutex
	nonces     map[common.Address]uint64
	balances   map[common.Address]*big.Int
	allowances map[common.Address]*big.Int
	executed   map[common.Hash]bool
	refunded   map[common.Hash]bool
	records    map[common.Hash]SettlementRecord
	block      uint64
	now        func() time.Time
	mute       bool
}

// NewSimulated returns an empty simulated ledger.
func NewSimulated() *Simulated {
	return &Simulated{
		nonces:     make(map[common.Address]uint64),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]*big.Int),
		executed:   make(map[common.Hash]bool),
		refunded:   make(map[common.Hash]bool),
		records:    make(map[common.Hash]SettlementRecord),
		now:        time.Now,
	}
}

// WithClock overrides the clock for testing.
func (s *Simulated) WithClock(now func() time.Time) *Simulated {
	s.now = now
	return s
}

// WithEventsSuppressed makes confirmations carry no events, to exercise the
// partial-success path where a transaction confirms but the event is absent.
func (s *Simulated) WithEventsSuppressed() *Simulated {
	s.mute = true
	return s
}

// Mint credits tokens to an account.
func (s *Simulated) Mint(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addr] = new(big.Int).Add(s.balance(addr), amount)
}

// Approve sets the processor allowance for an account.
func (s *Simulated) Approve(addr common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowances[addr] = new(big.Int).Set(amount)
}

// BalanceOf reports an account's token balance.
func (s *Simulated) BalanceOf(addr common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.balance(addr))
}

// SettlementOf returns the settlement record for an intent, if executed.
func (s *Simulated) SettlementOf(intentID common.Hash) (SettlementRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[intentID]
	return rec, ok
}

// Refunded reports whether an intent has already been refunded.
func (s *Simulated) Refunded(intentID common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[intentID]
}

func (s *Simulated) CurrentNonce(_ context.Context, user common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[user], nil
}

func (s *Simulated) Settle(_ context.Context, req SettleRequest) (*Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.now().Unix() > req.Expiry {
		return nil, &Rejection{Text: revertExpired}
	}
	if s.executed[req.IntentID] {
		return nil, &Rejection{Text: revertAlreadyExecuted}
	}

	// Recompute the packed message hash with the stored nonce. A stale
	// authorization recovers to the wrong address and fails the signature
	// check, exactly as on the external verifier.
	digest := codec.HashPacked(
		codec.Bytes32(req.IntentID),
		codec.Address(req.User),
		codec.Address(req.Merchant),
		codec.Uint{V: req.AmountRaw},
		codec.Bytes32(req.MandateHash),
		codec.Uint64(uint64(req.Expiry)),
		codec.Uint64(s.nonces[req.User]),
	)
	recovered, err := signer.Recover(digest.Bytes(), req.Signature)
	if err != nil || recovered != req.User {
		return nil, &Rejection{Text: revertBadSignature}
	}

	if s.balance(req.User).Cmp(req.AmountRaw) < 0 || s.allowance(req.User).Cmp(req.AmountRaw) < 0 {
		return nil, &Rejection{Text: revertInsufficient}
	}

	s.balances[req.User] = new(big.Int).Sub(s.balance(req.User), req.AmountRaw)
	s.balances[req.Merchant] = new(big.Int).Add(s.balance(req.Merchant), req.AmountRaw)
	s.allowances[req.User] = new(big.Int).Sub(s.allowance(req.User), req.AmountRaw)
	s.nonces[req.User]++
	s.executed[req.IntentID] = true
	s.records[req.IntentID] = SettlementRecord{
		User:        req.User,
		Merchant:    req.Merchant,
		Amount:      new(big.Int).Set(req.AmountRaw),
		MandateHash: req.MandateHash,
	}
	s.block++

	conf := &Confirmation{
		TxRef:    s.txRef(req.IntentID),
		BlockRef: s.block,
		GasUsed:  settleGas,
	}
	if !s.mute {
		conf.Events = []Event{{
			Name:        EventSettlementExecuted,
			IntentID:    req.IntentID,
			User:        req.User,
			Merchant:    req.Merchant,
			Amount:      new(big.Int).Set(req.AmountRaw),
			MandateHash: req.MandateHash,
		}}
	}
	return conf, nil
}

func (s *Simulated) Refund(_ context.Context, req RefundRequest) (*Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[req.IntentID]
	if !ok {
		return nil, &Rejection{Text: revertNotSettled}
	}
	if s.refunded[req.IntentID] {
		return nil, &Rejection{Text: revertAlreadyRefunded}
	}

	// The refund message is reconstructed from the settlement record, a
	// distinct tuple shape from the settlement hash.
	digest := codec.HashPacked(
		codec.Bytes32(req.IntentID),
		codec.Address(rec.Merchant),
		codec.Address(rec.User),
		codec.Uint{V: rec.Amount},
	)
	recovered, err := signer.Recover(digest.Bytes(), req.MerchantSignature)
	if err != nil || recovered != rec.Merchant {
		return nil, &Rejection{Text: revertBadMerchantSig}
	}

	if s.balance(rec.Merchant).Cmp(rec.Amount) < 0 {
		return nil, &Rejection{Text: revertRefundTransfer}
	}

	s.balances[rec.Merchant] = new(big.Int).Sub(s.balance(rec.Merchant), rec.Amount)
	s.balances[rec.User] = new(big.Int).Add(s.balance(rec.User), rec.Amount)
	s.refunded[req.IntentID] = true
	s.block++

	conf := &Confirmation{
		TxRef:    s.txRef(req.IntentID),
		BlockRef: s.block,
		GasUsed:  refundGas,
	}
	if !s.mute {
		conf.Events = []Event{{
			Name:     EventRefundExecuted,
			IntentID: req.IntentID,
			User:     rec.User,
			Merchant: rec.Merchant,
			Amount:   new(big.Int).Set(rec.Amount),
		}}
	}
	return conf, nil
}

// balance and allowance assume the lock is held.
func (s *Simulated) balance(addr common.Address) *big.Int {
	if b, ok := s.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}

func (s *Simulated) allowance(addr common.Address) *big.Int {
	if a, ok := s.allowances[addr]; ok {
		return a
	}
	return new(big.Int)
}

func (s *Simulated) txRef(intentID common.Hash) string {
	var blockBytes [8]byte
	binary.BigEndian.PutUint64(blockBytes[:], s.block)
	return crypto.Keccak256Hash(intentID.Bytes(), blockBytes[:]).Hex()
}
