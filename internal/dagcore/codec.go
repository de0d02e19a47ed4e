package dagcore

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/mezonai/dagnode/internal/wire"
)

// Wire field numbers for BlockMetadata, fixed as part of the on-disk
// external contract (spec §4.2/§6). Field order within a record is the
// ascending order below; decoding tolerates any order.
const (
	fieldHash             = 1
	fieldParents          = 2
	fieldJustifications   = 3
	fieldValidator        = 4
	fieldRank             = 5
	fieldBondedValidators = 6

	fieldJustValidator = 1
	fieldJustHash      = 2

	fieldBondValidator = 1
	fieldBondStake     = 2
)

// Marshal encodes a BlockMetadata record using the protobuf wire format
// (see internal/wire's package doc for why this is hand-written).
func Marshal(m *BlockMetadata) []byte {
	w := wire.NewWriter()
	w.BytesField(fieldHash, m.Hash[:])
	for _, p := range m.Parents {
		w.BytesField(fieldParents, p[:])
	}
	for _, j := range m.Justifications {
		jw := wire.NewWriter()
		jw.BytesField(fieldJustValidator, j.Validator)
		jw.BytesField(fieldJustHash, j.LatestHash[:])
		w.Message(fieldJustifications, jw.Bytes())
	}
	w.BytesField(fieldValidator, m.Validator)
	w.Uint64(fieldRank, uint64(m.Rank))
	for _, v := range sortedBonded(m.BondedValidators) {
		bw := wire.NewWriter()
		bw.BytesField(fieldBondValidator, v.Validator)
		if v.Stake != nil {
			bw.BytesField(fieldBondStake, v.Stake.Bytes())
		}
		w.Message(fieldBondedValidators, bw.Bytes())
	}
	return w.Bytes()
}

// sortedBonded returns bonded validators in a fixed, deterministic order
// (lexicographic by key) so Marshal produces byte-identical records across
// runs with the same logical metadata, regardless of map iteration order.
func sortedBonded(m map[string]*BondedValidator) []*BondedValidator {
	out := make([]*BondedValidator, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validator.key() < out[j].Validator.key() })
	return out
}

// Unmarshal decodes a BlockMetadata record. It returns an error for a
// structurally malformed record (truncated tag/length/value); the caller
// (the metadata store's replay loop) treats that as a corrupt tail per
// §4.1/§4.2 and truncates from that offset.
func Unmarshal(data []byte) (*BlockMetadata, error) {
	m := &BlockMetadata{}
	r := wire.NewReader(data)
	for !r.Done() {
		field, wt, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch field {
		case fieldHash:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			copy(m.Hash[:], b)
		case fieldParents:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			var h BlockHash
			copy(h[:], b)
			m.Parents = append(m.Parents, h)
		case fieldJustifications:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			j, err := unmarshalJustification(b)
			if err != nil {
				return nil, err
			}
			m.Justifications = append(m.Justifications, j)
		case fieldValidator:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			m.Validator = append(ValidatorId{}, b...)
		case fieldRank:
			v, err := r.Varint()
			if err != nil {
				return nil, err
			}
			m.Rank = Rank(v)
		case fieldBondedValidators:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			bv, err := unmarshalBonded(b)
			if err != nil {
				return nil, err
			}
			if m.BondedValidators == nil {
				m.BondedValidators = map[string]*BondedValidator{}
			}
			m.BondedValidators[bv.Validator.key()] = bv
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func unmarshalJustification(data []byte) (Justification, error) {
	var j Justification
	r := wire.NewReader(data)
	for !r.Done() {
		field, wt, ok, err := r.Next()
		if err != nil {
			return j, err
		}
		if !ok {
			break
		}
		switch field {
		case fieldJustValidator:
			b, err := r.Bytes()
			if err != nil {
				return j, err
			}
			j.Validator = append(ValidatorId{}, b...)
		case fieldJustHash:
			b, err := r.Bytes()
			if err != nil {
				return j, err
			}
			copy(j.LatestHash[:], b)
		default:
			if err := r.Skip(wt); err != nil {
				return j, err
			}
		}
	}
	return j, nil
}

func unmarshalBonded(data []byte) (*BondedValidator, error) {
	bv := &BondedValidator{Stake: uint256.NewInt(0)}
	r := wire.NewReader(data)
	for !r.Done() {
		field, wt, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch field {
		case fieldBondValidator:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			bv.Validator = append(ValidatorId{}, b...)
		case fieldBondStake:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}
			bv.Stake = new(uint256.Int).SetBytes(b)
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}
	return bv, nil
}
