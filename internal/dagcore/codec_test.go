package dagcore

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	m := &BlockMetadata{
		Hash:    hashOf("B1"),
		Parents: []BlockHash{hashOf("P1"), hashOf("P2")},
		Justifications: []Justification{
			{Validator: validatorOf('A'), LatestHash: hashOf("JA")},
			{Validator: validatorOf('B'), LatestHash: hashOf("JB")},
		},
		Validator: validatorOf('C'),
		Rank:      7,
		BondedValidators: map[string]*BondedValidator{
			string(validatorOf('A')): {Validator: validatorOf('A'), Stake: uint256.NewInt(42)},
			string(validatorOf('B')): {Validator: validatorOf('B'), Stake: uint256.NewInt(0)},
		},
	}

	encoded := Marshal(m)
	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)

	require.Equal(t, m.Hash, decoded.Hash)
	require.Equal(t, m.Parents, decoded.Parents)
	require.Equal(t, m.Justifications, decoded.Justifications)
	require.Equal(t, []byte(m.Validator), []byte(decoded.Validator))
	require.Equal(t, m.Rank, decoded.Rank)
	require.Len(t, decoded.BondedValidators, 2)
	require.True(t, decoded.IsBonded(validatorOf('A')))
	require.True(t, decoded.IsBonded(validatorOf('B')))
	require.Equal(t, uint256.NewInt(42), decoded.BondedValidators[string(validatorOf('A'))].Stake)
}

func TestMarshalIsDeterministicRegardlessOfMapOrder(t *testing.T) {
	base := &BlockMetadata{
		Hash: hashOf("B1"),
		BondedValidators: map[string]*BondedValidator{
			string(validatorOf('A')): {Validator: validatorOf('A'), Stake: uint256.NewInt(1)},
			string(validatorOf('B')): {Validator: validatorOf('B'), Stake: uint256.NewInt(2)},
			string(validatorOf('C')): {Validator: validatorOf('C'), Stake: uint256.NewInt(3)},
		},
	}
	first := Marshal(base)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Marshal(base))
	}
}

func TestUnmarshalRejectsTruncatedRecord(t *testing.T) {
	m := &BlockMetadata{Hash: hashOf("B1"), Validator: validatorOf('A')}
	encoded := Marshal(m)
	_, err := Unmarshal(encoded[:len(encoded)-1])
	require.Error(t, err)
}

func TestNewlyBondedSinceExcludesJustifiedValidators(t *testing.T) {
	m := &BlockMetadata{
		Justifications: []Justification{{Validator: validatorOf('A'), LatestHash: hashOf("X")}},
		BondedValidators: map[string]*BondedValidator{
			string(validatorOf('A')): {Validator: validatorOf('A'), Stake: uint256.NewInt(1)},
			string(validatorOf('B')): {Validator: validatorOf('B'), Stake: uint256.NewInt(1)},
		},
	}
	newly := m.NewlyBondedSince()
	require.Len(t, newly, 1)
	require.Equal(t, validatorOf('B'), newly[0])
}
