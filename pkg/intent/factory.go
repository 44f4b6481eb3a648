// Package intent produces unique payment intents from buyer-supplied order
// data.
package intent

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/clearlane/mandatepay/pkg/money"
	"github.com/clearlane/mandatepay/pkg/protocol"
)

// DefaultTTL is the protocol default intent lifetime.
const DefaultTTL = time.Hour

// DefaultCurrency is assumed when the order does not name one.
const DefaultCurrency = "USDC"

// Order is the buyer-supplied input to intent creation.
type Order struct {
	ProductID string
	Amount    string // decimal display string
	Currency  string
	Merchant  string // hex account address
}

// Factory creates intents. It owns the monotonic counter that, combined with
// wall-clock time and the product identifier, makes intent IDs unique within
// a process. The counter is not persisted; uniqueness across restarts is only
// probabilistic via the timestamp component.
type Factory struct {
	counter atomic.Uint64
	ttl     time.Duration
	now     func() time.Time
}

// NewFactory returns a factory with the protocol-default intent lifetime.
func NewFactory() *Factory {
	return &Factory{ttl: DefaultTTL, now: time.Now}
}

// WithClock overrides the clock for testing.
func (f *Factory) WithClock(now func() time.Time) *Factory {
	f.now = now
	return f
}

// WithTTL overrides the intent lifetime.
func (f *Factory) WithTTL(ttl time.Duration) *Factory {
	f.ttl = ttl
	return f
}

// CreateIntent validates the order and mints an immutable intent. Safe for
// concurrent use.
func (f *Factory) CreateIntent(order Order) (*protocol.Intent, error) {
	if order.ProductID == "" {
		return nil, &protocol.ValidationError{Field: "product_id", Msg: "missing product identifier"}
	}
	if _, err := money.ToRaw(order.Amount); err != nil {
		return nil, &protocol.ValidationError{Field: "amount", Msg: err.Error()}
	}
	if !common.IsHexAddress(order.Merchant) {
		return nil, &protocol.ValidationError{Field: "merchant", Msg: fmt.Sprintf("malformed merchant identity %q", order.Merchant)}
	}

	currency := order.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := f.now()
	return &protocol.Intent{
		IntentID:  f.nextID(order.ProductID, now),
		ProductID: order.ProductID,
		Amount:    order.Amount,
		Currency:  currency,
		Merchant:  common.HexToAddress(order.Merchant),
		Expiry:    now.Add(f.ttl).Unix(),
		CreatedAt: now.UTC(),
	}, nil
}

// nextID derives a 32-byte correlation handle from the counter, wall-clock
// time and the product identifier. Not cryptographically unguessable; never
// treat it as a secret.
func (f *Factory) nextID(productID string, now time.Time) common.Hash {
	n := f.counter.Add(1)
	seed := fmt.Sprintf("INT-%d-%s-%d", now.UnixMilli(), productID, n)
	return crypto.Keccak256Hash([]byte(seed))
}
