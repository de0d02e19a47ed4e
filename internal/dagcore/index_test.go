package dagcore

import (
	"fmt"
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func validatorOf(b byte) ValidatorId {
	v := make(ValidatorId, 32)
	for i := range v {
		v[i] = b
	}
	return v
}

func hashOf(s string) BlockHash {
	var h BlockHash
	copy(h[:], []byte(s))
	return h
}

// Scenario 1: linear chain of three.
func TestLinearChainOfThree(t *testing.T) {
	idx := NewIndex()
	b1 := hashOf("B1")
	b2 := hashOf("B2")
	b3 := hashOf("B3")

	insert := func(hash BlockHash, parents []BlockHash, val ValidatorId) {
		m := &BlockMetadata{Hash: hash, Parents: parents, Validator: val}
		m.Rank = idx.ComputeRank(parents)
		idx.Insert(m)
	}
	insert(b1, nil, validatorOf('A'))
	insert(b2, []BlockHash{b1}, validatorOf('B'))
	insert(b3, []BlockHash{b2}, validatorOf('A'))

	snap := idx.Snapshot()
	hA, ok := snap.LatestMessageHash(validatorOf('A'))
	require.True(t, ok)
	require.Equal(t, b3, hA)
	hB, ok := snap.LatestMessageHash(validatorOf('B'))
	require.True(t, ok)
	require.Equal(t, b2, hB)

	require.Equal(t, [][]BlockHash{{b1}, {b2}, {b3}}, snap.TopoSort)

	c1, ok := snap.Children(b1)
	require.True(t, ok)
	require.Contains(t, c1, b2)
	c2, ok := snap.Children(b2)
	require.True(t, ok)
	require.Contains(t, c2, b3)
}

// Scenario 2: genesis with empty validator.
func TestGenesisWithEmptyValidatorNotIndexed(t *testing.T) {
	idx := NewIndex()
	g := hashOf("G")
	b1 := hashOf("B1")

	gm := &BlockMetadata{Hash: g, Validator: ValidatorId{}}
	gm.Rank = idx.ComputeRank(nil)
	idx.Insert(gm)

	bm := &BlockMetadata{Hash: b1, Parents: []BlockHash{g}, Validator: validatorOf('A')}
	bm.Rank = idx.ComputeRank(bm.Parents)
	idx.Insert(bm)

	snap := idx.Snapshot()
	require.True(t, snap.Contains(g))
	gMeta, _ := snap.Lookup(g)
	require.Equal(t, Rank(0), gMeta.Rank)
	bMeta, _ := snap.Lookup(b1)
	require.Equal(t, Rank(1), bMeta.Rank)

	_, ok := snap.LatestMessageHash(ValidatorId{})
	require.False(t, ok, "empty validator must never be indexed as a latest message")

	hA, ok := snap.LatestMessageHash(validatorOf('A'))
	require.True(t, ok)
	require.Equal(t, b1, hA)
}

// Scenario 3: malformed validator rejected.
func TestMalformedValidatorRejected(t *testing.T) {
	v := make(ValidatorId, 16)
	for i := range v {
		v[i] = 'X'
	}
	err := v.Validate()
	require.Error(t, err)
}

// P5: clear yields empty maps/vectors and contains(h)=false for every
// previously-inserted hash.
func TestClearEmptiesEveryStore(t *testing.T) {
	idx := NewIndex()
	b1 := hashOf("B1")
	m := &BlockMetadata{Hash: b1, Validator: validatorOf('A')}
	m.Rank = idx.ComputeRank(nil)
	idx.Insert(m)

	require.True(t, idx.Snapshot().Contains(b1))
	idx.Clear()

	snap := idx.Snapshot()
	require.False(t, snap.Contains(b1))
	require.Empty(t, snap.Metadata)
	require.Empty(t, snap.children)
	require.Empty(t, snap.JustifiedBy)
	require.Empty(t, snap.Latest)
	require.Empty(t, snap.TopoSort)
}

// A snapshot taken before a later Insert must not observe that insert
// (structural-sharing discipline).
func TestSnapshotIsImmutableAcrossLaterInserts(t *testing.T) {
	idx := NewIndex()
	b1 := hashOf("B1")
	m := &BlockMetadata{Hash: b1, Validator: validatorOf('A')}
	m.Rank = idx.ComputeRank(nil)
	idx.Insert(m)

	before := idx.Snapshot()

	b2 := hashOf("B2")
	m2 := &BlockMetadata{Hash: b2, Parents: []BlockHash{b1}, Validator: validatorOf('B')}
	m2.Rank = idx.ComputeRank(m2.Parents)
	idx.Insert(m2)

	require.False(t, before.Contains(b2))
	require.True(t, idx.Snapshot().Contains(b2))

	// before's children[b1] must not have gained b2.
	c, ok := before.Children(b1)
	require.False(t, ok || len(c) != 0, "pre-insert snapshot must not see the new child")
}

// P1: for any sequence of inserts over random block graphs, the final
// snapshot satisfies the core adjacency/ordering invariants.
func TestRandomBlockGraphsSatisfyInvariants(t *testing.T) {
	fz := fuzz.New().NilChance(0).NumElements(0, 3)
	for run := 0; run < 20; run++ {
		idx := NewIndex()
		var hashes []BlockHash
		n := 15
		for i := 0; i < n; i++ {
			var parents []BlockHash
			if len(hashes) > 0 {
				var idxCount int
				fz.Fuzz(&idxCount)
				count := idxCount % (len(hashes) + 1)
				if count < 0 {
					count = -count
				}
				if count > len(hashes) {
					count = len(hashes)
				}
				for j := 0; j < count; j++ {
					parents = append(parents, hashes[j])
				}
			}
			h := hashOf(fmt.Sprintf("B%d", i))
			m := &BlockMetadata{Hash: h, Parents: parents, Validator: validatorOf(byte('A' + i%5))}
			m.Rank = idx.ComputeRank(parents)
			idx.Insert(m)
			hashes = append(hashes, h)
		}

		snap := idx.Snapshot()
		for _, h := range hashes {
			meta, ok := snap.Lookup(h)
			require.True(t, ok)
			for _, p := range meta.Parents {
				pMeta, ok := snap.Lookup(p)
				if ok {
					require.Less(t, pMeta.Rank, meta.Rank, "a known parent must have strictly lower rank")
				}
				children, ok := snap.Children(p)
				require.True(t, ok)
				require.Contains(t, children, h)
			}
		}
		// Every rank bucket in topoSort only contains hashes of that rank.
		for r, bucket := range snap.TopoSort {
			for _, h := range bucket {
				meta, ok := snap.Lookup(h)
				require.True(t, ok)
				require.Equal(t, Rank(r), meta.Rank)
			}
		}
	}
}
