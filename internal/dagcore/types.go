// Package dagcore holds the block DAG data model (spec §3) and the
// in-memory DAG index (spec component D): child/justification adjacency and
// the rank-indexed topological ordering, derived purely from inserted
// block metadata.
package dagcore

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"

	"github.com/mezonai/dagnode/internal/corestore"
)

// BlockHash is an opaque 32-byte block identifier.
type BlockHash [32]byte

func (h BlockHash) String() string {
	return base58.Encode(h[:])[:8]
}

// ValidatorId is a 32-byte validator public key, or the empty identifier,
// which denotes the genesis block only.
type ValidatorId []byte

// Empty reports whether this is the genesis (no-validator) identifier.
func (v ValidatorId) Empty() bool { return len(v) == 0 }

// Validate enforces §3 invariant 6: empty, or exactly 32 bytes.
func (v ValidatorId) Validate() error {
	if len(v) == 0 || len(v) == 32 {
		return nil
	}
	return corestore.New(corestore.KindMalformedValidator,
		fmt.Sprintf("validator id must be empty or 32 bytes, got %d", len(v)))
}

// key is the map-key form of a ValidatorId; ValidatorId is a []byte slice
// and so not itself a valid Go map key.
func (v ValidatorId) key() string { return string(v) }

func (v ValidatorId) String() string {
	if v.Empty() {
		return "<genesis>"
	}
	return base58.Encode(v)[:8]
}

// Rank is a block's position in the topological vector: 0 if it has no
// parents, else one more than the maximum rank among its known parents.
type Rank uint64

// Justification is a reference from a block to the latest block its author
// observed from one validator.
type Justification struct {
	Validator  ValidatorId
	LatestHash BlockHash
}

// BondedValidator is one entry of a block's active validator set, carrying
// the validator's stake weight (a supplement to spec.md's bare
// set<ValidatorId>, grounded in the original system's bonds; see
// SPEC_FULL.md §3).
type BondedValidator struct {
	Validator ValidatorId
	Stake     *uint256.Int
}

// BlockMetadata is the immutable record created by insert (spec §3); it is
// never mutated after creation and never deleted except by clear.
type BlockMetadata struct {
	Hash            BlockHash
	Parents         []BlockHash
	Justifications  []Justification
	Validator       ValidatorId
	Rank            Rank
	BondedValidators map[string]*BondedValidator // key = string(ValidatorId)
}

// IsBonded reports whether v is a member of this block's active validator
// set, regardless of stake weight (a zero-stake bonded validator is still a
// member; see SPEC_FULL.md §3).
func (m *BlockMetadata) IsBonded(v ValidatorId) bool {
	_, ok := m.BondedValidators[v.key()]
	return ok
}

// BondedValidatorIds returns the active validator set as a plain slice,
// satisfying spec.md's set<ValidatorId> view of bonded_validators.
func (m *BlockMetadata) BondedValidatorIds() []ValidatorId {
	ids := make([]ValidatorId, 0, len(m.BondedValidators))
	for _, bv := range m.BondedValidators {
		ids = append(ids, bv.Validator)
	}
	return ids
}

// NewlyBondedSince reports the validators in this block's bonded set that
// were not cited by any of its justifications — the set that "inherits" the
// block's latest-message entry per §3 invariant 5.
func (m *BlockMetadata) NewlyBondedSince() []ValidatorId {
	justified := make(map[string]struct{}, len(m.Justifications))
	for _, j := range m.Justifications {
		justified[j.Validator.key()] = struct{}{}
	}
	var out []ValidatorId
	for _, bv := range m.BondedValidators {
		if _, ok := justified[bv.Validator.key()]; !ok {
			out = append(out, bv.Validator)
		}
	}
	return out
}
