package codec

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePaddedWidths(t *testing.T) {
	id := common.HexToHash("0xaabbccdd")
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	enc, err := EncodePadded(
		Bytes32(id),
		Address(addr),
		Uint{V: big.NewInt(50_000_000)},
		String("USDC"),
		Uint64(1_700_000_000),
	)
	require.NoError(t, err)
	require.Len(t, enc, 5*32)

	// Address is left-padded into its word.
	assert.Equal(t, make([]byte, 12), enc[32:44])
	assert.Equal(t, addr.Bytes(), enc[44:64])

	// String is right-padded into its word.
	assert.Equal(t, []byte("USDC"), enc[96:100])
	assert.Equal(t, make([]byte, 28), enc[100:128])
}

func TestEncodePackedWidths(t *testing.T) {
	id := common.HexToHash("0xaabbccdd")
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	enc := EncodePacked(Bytes32(id), Address(addr), Uint{V: big.NewInt(7)})
	// 32 + 20 + 32: the address carries no padding in packed mode.
	require.Len(t, enc, 84)
	assert.Equal(t, addr.Bytes(), enc[32:52])
}

func TestModesAreNotInterchangeable(t *testing.T) {
	addr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fields := []Field{Bytes32(common.HexToHash("0x01")), Address(addr), Uint64(42)}

	padded, err := HashPadded(fields...)
	require.NoError(t, err)
	packed := HashPacked(fields...)

	assert.NotEqual(t, padded, packed)
}

func TestHashDeterminism(t *testing.T) {
	fields := []Field{
		Bytes32(common.HexToHash("0xdeadbeef")),
		Address(common.HexToAddress("0x3333333333333333333333333333333333333333")),
		Uint{V: big.NewInt(1_000_000)},
		String("USDC"),
		Uint64(1_800_000_000),
	}

	h1, err := HashPadded(fields...)
	require.NoError(t, err)
	h2, err := HashPadded(fields...)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	assert.Equal(t, HashPacked(fields...), HashPacked(fields...))
}

func TestFieldOrderChangesHash(t *testing.T) {
	a := Bytes32(common.HexToHash("0x01"))
	b := Uint64(9)

	assert.NotEqual(t, HashPacked(a, b), HashPacked(b, a))
}

func TestPaddedRejectsOversizedString(t *testing.T) {
	_, err := EncodePadded(String("this currency code is far too long to fit a word"))
	require.Error(t, err)
}

func TestPaddedRejectsNegativeUint(t *testing.T) {
	_, err := EncodePadded(Uint{V: big.NewInt(-1)})
	require.Error(t, err)
}

func TestPackedAdjacentFieldsNotAmbiguousByWidth(t *testing.T) {
	// Packed encodings of differently-split inputs must still differ because
	// field widths are fixed per type.
	one := EncodePacked(Address(common.HexToAddress("0x01")), Address(common.HexToAddress("0x02")))
	two := EncodePacked(Address(common.HexToAddress("0x0102")))
	if bytes.Equal(one, two) {
		t.Fatal("distinct tuples produced identical packed bytes")
	}
}
