// Package codec provides the two canonical byte encodings used to build
// protocol hash preimages.
//
// Every signer and every independent verifier must agree byte-for-byte on the
// preimage of each artifact hash, so both encodings are defined here and
// nowhere else:
//
//   - Padded: every field occupies exactly one 32-byte word. Used only for
//     the mandate hash.
//   - Packed: every field is emitted at its minimal width (addresses are 20
//     bytes, not 32). Used only for the authorization and refund message
//     hashes.
//
// The two modes are deliberately separate operations. Feeding a mandate tuple
// through the packed encoder (or vice versa) produces a hash the verifier
// will never accept.
package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const wordSize = 32

// Field is a typed value that knows its representation in both encodings.
type Field interface {
	padded() ([]byte, error)
	packed() []byte
}

// Bytes32 encodes a 32-byte value verbatim in both modes.
type Bytes32 common.Hash

func (b Bytes32) padded() ([]byte, error) { return common.Hash(b).Bytes(), nil }
func (b Bytes32) packed() []byte          { return common.Hash(b).Bytes() }

// Address encodes a 20-byte account identity. Padded mode left-pads to a full
// word; packed mode emits the 20 raw bytes.
type Address common.Address

func (a Address) padded() ([]byte, error) {
	return common.LeftPadBytes(common.Address(a).Bytes(), wordSize), nil
}

func (a Address) packed() []byte { return common.Address(a).Bytes() }

// Uint encodes an unsigned big integer big-endian in a full 32-byte word in
// both modes. Negative or oversized values are an encoding error.
type Uint struct{ V *big.Int }

func (u Uint) padded() ([]byte, error) {
	if u.V == nil || u.V.Sign() < 0 {
		return nil, fmt.Errorf("codec: uint field must be a non-negative integer")
	}
	if u.V.BitLen() > 256 {
		return nil, fmt.Errorf("codec: uint field overflows 256 bits")
	}
	return common.LeftPadBytes(u.V.Bytes(), wordSize), nil
}

func (u Uint) packed() []byte {
	if u.V == nil {
		return make([]byte, wordSize)
	}
	return common.LeftPadBytes(u.V.Bytes(), wordSize)
}

// Uint64 is a convenience wrapper for timestamps and nonces.
func Uint64(v uint64) Uint { return Uint{V: new(big.Int).SetUint64(v)} }

// String encodes short UTF-8 text such as a currency code. Padded mode
// right-pads to a full word and rejects values longer than 32 bytes; packed
// mode emits the raw bytes.
type String string

func (s String) padded() ([]byte, error) {
	if len(s) > wordSize {
		return nil, fmt.Errorf("codec: string field %q exceeds %d bytes", string(s), wordSize)
	}
	return common.RightPadBytes([]byte(s), wordSize), nil
}

func (s String) packed() []byte { return []byte(s) }

// EncodePadded produces the structured encoding: one 32-byte word per field.
func EncodePadded(fields ...Field) ([]byte, error) {
	out := make([]byte, 0, len(fields)*wordSize)
	for i, f := range fields {
		word, err := f.padded()
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out = append(out, word...)
	}
	return out, nil
}

// EncodePacked produces the concatenated encoding: each field at its minimal
// width with no padding between fields.
func EncodePacked(fields ...Field) []byte {
	var out []byte
	for _, f := range fields {
		out = append(out, f.packed()...)
	}
	return out
}

// HashPadded is the keccak-256 digest of the padded encoding.
func HashPadded(fields ...Field) (common.Hash, error) {
	enc, err := EncodePadded(fields...)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// HashPacked is the keccak-256 digest of the packed encoding.
func HashPacked(fields ...Field) common.Hash {
	return crypto.Keccak256Hash(EncodePacked(fields...))
}
