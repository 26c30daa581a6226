package idl

import (
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type borsh []byte

func (b borsh) u8(v uint8) borsh   { return append(b, v) }
func (b borsh) u16(v uint16) borsh { return binary.LittleEndian.AppendUint16(b, v) }
func (b borsh) u32(v uint32) borsh { return binary.LittleEndian.AppendUint32(b, v) }
func (b borsh) u64(v uint64) borsh { return binary.LittleEndian.AppendUint64(b, v) }
func (b borsh) raw(v []byte) borsh { return append(b, v...) }
func (b borsh) str(s string) borsh { return b.u32(uint32(len(s))).raw([]byte(s)) }
func (b borsh) u128(lo, hi uint64) borsh {
	return b.u64(lo).u64(hi)
}

func loadTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := LoadSchema("testdata/amm.json")
	require.NoError(t, err)
	return s
}

func TestLoadSchemaIndexesDiscriminators(t *testing.T) {
	s := loadTestSchema(t)

	assert.Equal(t, "test_amm", s.Name)
	assert.Len(t, s.ProgramID, 32)

	name, ok := s.Account(Discriminator{247, 237, 227, 245, 215, 195, 222, 70})
	require.True(t, ok)
	assert.Equal(t, "PoolState", name)

	_, ok = s.Account(Discriminator{1, 1, 1, 1, 1, 1, 1, 1})
	assert.False(t, ok, "accounts without a type definition are not indexed")

	name, ok = s.Event(Discriminator{27, 60, 21, 213, 138, 170, 187, 147})
	require.True(t, ok)
	assert.Equal(t, "EvtSwap", name)
	assert.Equal(t, []string{"EvtSwap"}, s.EventNames())
}

func TestDecodeStructWithNestedTypes(t *testing.T) {
	s := loadTestSchema(t)
	authority := make([]byte, 32)
	authority[0] = 9

	data := borsh{}.
		raw(authority).
		u128(5, 1).
		u32(uint32(0xFFFFFFFE)).
		u16(30).u16(500).
		str("sol-usdc").
		u8(1).u64(uint64(1700000000)).
		u8(1).u64(77)

	fields, err := s.Decode("PoolState", data)
	require.NoError(t, err)

	assert.Equal(t, base58.Encode(authority), fields["authority"])
	assert.Equal(t, "18446744073709551621", fields["liquidity"])
	assert.Equal(t, int32(-2), fields["tick"])
	assert.Equal(t, []any{uint16(30), uint16(500)}, fields["fees"])
	assert.Equal(t, "sol-usdc", fields["label"])
	assert.Equal(t, map[string]any{"Paused": map[string]any{"until": int64(1700000000)}}, fields["status"])
	assert.Equal(t, uint64(77), fields["reward"])
}

func TestDecodeUnitEnumAndNoneOption(t *testing.T) {
	s := loadTestSchema(t)
	data := borsh{}.
		raw(make([]byte, 32)).
		u128(0, 0).
		u32(7).
		u16(0).u16(0).
		str("").
		u8(0).
		u8(0)

	fields, err := s.Decode("PoolState", data)
	require.NoError(t, err)
	assert.Equal(t, "Active", fields["status"])
	assert.Nil(t, fields["reward"])
}

const mintIDL = `{
  "address": "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK",
  "types": [
    {"name": "Mint", "type": {"kind": "struct", "fields": [
      {"name": "authority", "type": {"coption": "u64"}},
      {"name": "decimals", "type": "u8"}
    ]}}
  ]
}`

func TestDecodeCOptionUsesFourByteTag(t *testing.T) {
	doc, err := Parse([]byte(mintIDL))
	require.NoError(t, err)
	s, err := NewSchema(doc)
	require.NoError(t, err)

	fields, err := s.Decode("Mint", borsh{}.u32(1).u64(77).u8(6))
	require.NoError(t, err)
	assert.Equal(t, uint64(77), fields["authority"])
	assert.Equal(t, uint8(6), fields["decimals"])

	fields, err = s.Decode("Mint", borsh{}.u32(0).u8(9))
	require.NoError(t, err)
	assert.Nil(t, fields["authority"])
	assert.Equal(t, uint8(9), fields["decimals"])

	_, err = s.Decode("Mint", borsh{}.u32(2).u8(9))
	assert.Error(t, err)
}

func TestDecodeVecOfStructsAndBytes(t *testing.T) {
	s := loadTestSchema(t)
	data := borsh{}.
		raw(make([]byte, 32)).
		u8(1).
		u8(0).
		u64(100).u64(95).u128(1<<63, 0).
		u32(1).u64(1).u64(2).u128(3, 0).
		u32(2).raw([]byte{0xca, 0xfe})

	fields, err := s.Decode("EvtSwap", data)
	require.NoError(t, err)

	assert.Equal(t, uint8(1), fields["trade_direction"])
	assert.Equal(t, false, fields["has_referral"])
	assert.Equal(t, map[string]any{
		"actual_input_amount": uint64(100),
		"output_amount":       uint64(95),
		"next_sqrt_price":     "9223372036854775808",
	}, fields["swap_result"])
	hops, ok := fields["hops"].([]any)
	require.True(t, ok)
	require.Len(t, hops, 1)
	assert.Equal(t, []byte{0xca, 0xfe}, fields["memo"])
}

func TestDecodeRejectsTruncatedAndOversizedInput(t *testing.T) {
	s := loadTestSchema(t)

	_, err := s.Decode("EvtSwap", make([]byte, 10))
	assert.Error(t, err)

	data := borsh{}.raw(make([]byte, 32)).u8(0).u8(0).u64(1).u64(1).u128(1, 0).u32(1 << 30)
	_, err = s.Decode("EvtSwap", data)
	assert.Error(t, err, "collection length beyond input must fail before allocating")

	_, err = s.Decode("Missing", nil)
	assert.Error(t, err)
}

func TestInt128String(t *testing.T) {
	minusOne := make([]byte, 16)
	for i := range minusOne {
		minusOne[i] = 0xff
	}
	assert.Equal(t, "-1", int128String(minusOne, true))
	assert.Equal(t, "340282366920938463463374607431768211455", int128String(minusOne, false))
}

func TestParseRejectsBadDocuments(t *testing.T) {
	_, err := NewSchema(&IDL{Address: "not-base58-0OIl"})
	assert.Error(t, err)

	doc, err := Parse([]byte(`{"address":"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK",
		"accounts":[{"name":"A","discriminator":[1,2,3]}],
		"types":[{"name":"A","type":{"kind":"struct","fields":[]}}]}`))
	require.NoError(t, err)
	_, err = NewSchema(doc)
	assert.Error(t, err, "short discriminator")

	_, err = Parse([]byte(`{"address":"x","types":[{"name":"A","type":{"kind":"struct","fields":[{"name":"f","type":{"map":"u8"}}]}}]}`))
	assert.Error(t, err)
}
