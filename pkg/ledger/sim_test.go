package ledger_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearlane/mandatepay/pkg/authorize"
	"github.com/clearlane/mandatepay/pkg/ledger"
	"github.com/clearlane/mandatepay/pkg/refund"
	"github.com/clearlane/mandatepay/pkg/signer"
)

type party struct {
	signer *signer.LocalSigner
	addr   common.Address
}

func newParty(t *testing.T) party {
	t.Helper()
	s, err := signer.NewLocalSigner()
	require.NoError(t, err)
	return party{signer: s, addr: s.Address()}
}

// signedRequest builds a settle request whose signature matches the sim's
// current nonce for the user.
func signedRequest(t *testing.T, sim *ledger.Simulated, user, merchant party, amount int64, expiry int64) ledger.SettleRequest {
	t.Helper()
	nonce, err := sim.CurrentNonce(context.Background(), user.addr)
	require.NoError(t, err)

	intentID := common.HexToHash("0x11")
	mandateHash := common.HexToHash("0x22")
	raw := big.NewInt(amount)

	digest := authorize.MessageHash(intentID, user.addr, merchant.addr, raw, mandateHash, expiry, nonce)
	sig, err := user.signer.Sign(digest.Bytes())
	require.NoError(t, err)

	return ledger.SettleRequest{
		IntentID:    intentID,
		User:        user.addr,
		Merchant:    merchant.addr,
		AmountRaw:   raw,
		MandateHash: mandateHash,
		Expiry:      expiry,
		Signature:   sig,
	}
}

func fund(sim *ledger.Simulated, user party, amount int64) {
	sim.Mint(user.addr, big.NewInt(amount))
	sim.Approve(user.addr, big.NewInt(amount))
}

const farFuture = 4_000_000_000

func TestSettleHappyPath(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	conf, err := sim.Settle(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, conf.TxRef)
	require.Len(t, conf.Events, 1)
	assert.Equal(t, ledger.EventSettlementExecuted, conf.Events[0].Name)

	assert.Equal(t, big.NewInt(50_000_000), sim.BalanceOf(user.addr))
	assert.Equal(t, big.NewInt(50_000_000), sim.BalanceOf(merchant.addr))

	nonce, err := sim.CurrentNonce(context.Background(), user.addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	rec, ok := sim.SettlementOf(req.IntentID)
	require.True(t, ok)
	assert.Equal(t, merchant.addr, rec.Merchant)
}

func TestSettleExpiredRegardlessOfSignature(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	past := time.Now().Add(-time.Hour).Unix()
	req := signedRequest(t, sim, user, merchant, 50_000_000, past)

	_, err := sim.Settle(context.Background(), req)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "expired")
}

func TestSettleTamperedSignature(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	req.Signature[10] ^= 0xff

	_, err := sim.Settle(context.Background(), req)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "signature")
}

func TestSettleReplaySameIntent(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 200_000_000)

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	_, err := sim.Settle(context.Background(), req)
	require.NoError(t, err)

	// Resubmitting the redeemed authorization must hit the single-shot guard
	// now that the nonce has advanced.
	_, err = sim.Settle(context.Background(), req)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "already executed")
}

func TestSettleStaleNonceFailsSignatureCheck(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchantA, merchantB := newParty(t), newParty(t), newParty(t)
	fund(sim, user, 200_000_000)

	// Both authorizations signed against nonce 0.
	first := signedRequest(t, sim, user, merchantA, 50_000_000, farFuture)
	second := signedRequest(t, sim, user, merchantB, 50_000_000, farFuture)
	second.IntentID = common.HexToHash("0x99")
	// Re-sign second for its own intent id at nonce 0.
	digest := authorize.MessageHash(second.IntentID, user.addr, merchantB.addr, second.AmountRaw, second.MandateHash, second.Expiry, 0)
	sig, err := user.signer.Sign(digest.Bytes())
	require.NoError(t, err)
	second.Signature = sig

	_, err = sim.Settle(context.Background(), first)
	require.NoError(t, err)

	// The verifier recomputes with its stored nonce (now 1); the stale
	// signature recovers to the wrong address.
	_, err = sim.Settle(context.Background(), second)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "signature")
}

func TestSettleInsufficientFunds(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	sim.Mint(user.addr, big.NewInt(1_000))
	sim.Approve(user.addr, big.NewInt(1_000_000_000))

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	_, err := sim.Settle(context.Background(), req)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "insufficient")
}

func TestSettleInsufficientAllowance(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	sim.Mint(user.addr, big.NewInt(1_000_000_000))

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	_, err := sim.Settle(context.Background(), req)
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "insufficient")
}

func TestRefundHappyPathAndSingleUse(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	_, err := sim.Settle(context.Background(), req)
	require.NoError(t, err)

	refundDigest := refund.MessageHash(req.IntentID, merchant.addr, user.addr, req.AmountRaw)
	sig, err := merchant.signer.Sign(refundDigest.Bytes())
	require.NoError(t, err)

	conf, err := sim.Refund(context.Background(), ledger.RefundRequest{IntentID: req.IntentID, MerchantSignature: sig})
	require.NoError(t, err)
	require.Len(t, conf.Events, 1)
	assert.Equal(t, ledger.EventRefundExecuted, conf.Events[0].Name)
	assert.Equal(t, big.NewInt(100_000_000), sim.BalanceOf(user.addr))
	assert.True(t, sim.Refunded(req.IntentID))

	// Second refund for the same intent is rejected.
	_, err = sim.Refund(context.Background(), ledger.RefundRequest{IntentID: req.IntentID, MerchantSignature: sig})
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "already refunded")
}

func TestRefundUnsettledIntent(t *testing.T) {
	sim := ledger.NewSimulated()

	_, err := sim.Refund(context.Background(), ledger.RefundRequest{
		IntentID:          common.HexToHash("0x404"),
		MerchantSignature: make([]byte, 65),
	})
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "not settled")
}

func TestRefundWrongMerchant(t *testing.T) {
	sim := ledger.NewSimulated()
	user, merchant, impostor := newParty(t), newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	req := signedRequest(t, sim, user, merchant, 50_000_000, farFuture)
	_, err := sim.Settle(context.Background(), req)
	require.NoError(t, err)

	digest := refund.MessageHash(req.IntentID, impostor.addr, user.addr, req.AmountRaw)
	sig, err := impostor.signer.Sign(digest.Bytes())
	require.NoError(t, err)

	_, err = sim.Refund(context.Background(), ledger.RefundRequest{IntentID: req.IntentID, MerchantSignature: sig})
	var rej *ledger.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Text, "signature")
}

func TestEventsSuppressed(t *testing.T) {
	sim := ledger.NewSimulated().WithEventsSuppressed()
	user, merchant := newParty(t), newParty(t)
	fund(sim, user, 100_000_000)

	conf, err := sim.Settle(context.Background(), signedRequest(t, sim, user, merchant, 50_000_000, farFuture))
	require.NoError(t, err)
	assert.Empty(t, conf.Events)
}
