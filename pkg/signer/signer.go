// Package signer provides the signing interface used interchangeably for the
// merchant and user roles, plus a local secp256k1 implementation.
//
// Signatures follow the external verifier's convention: 65-byte [R‖S‖V] with
// V in {27,28}, computed over the digest wrapped in the EIP-191 personal
// message prefix. The prefix is applied inside Sign so no caller can sign the
// raw digest by mistake: a signature over the bare hash verifies locally but
// is rejected by the verifier.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrDeclined is returned by a signer when the holder explicitly refuses to
// sign. Callers treat it as a terminal "not authorized" outcome, not a fault.
var ErrDeclined = errors.New("signer: holder declined to sign")

// Signer signs protocol digests on behalf of one account identity.
type Signer interface {
	// Sign returns a 65-byte recoverable signature over the prefix-wrapped
	// digest.
	Sign(digest []byte) ([]byte, error)

	// Address is the public identity signatures recover to.
	Address() common.Address
}

// LocalSigner holds a secp256k1 private key in memory.
type LocalSigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewLocalSigner generates a fresh key pair.
func NewLocalSigner() (*LocalSigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: key generation failed: %w", err)
	}
	return fromKey(key), nil
}

// NewLocalSignerFromHex loads a signer from a hex-encoded private key.
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	return fromKey(key), nil
}

func fromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:  key,
		addr: crypto.PubkeyToAddress(key.PublicKey),
	}
}

func (s *LocalSigner) Sign(digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(digest), s.key)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	sig[64] += 27 // verifier convention: V in {27,28}
	return sig, nil
}

func (s *LocalSigner) Address() common.Address { return s.addr }

// Recover returns the address that produced sig over the prefix-wrapped
// digest.
func Recover(digest, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signer: signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(digest), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("signer: recovery failed: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
