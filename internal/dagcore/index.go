package dagcore

// Index is the live, mutable DAG index (spec component D). It is not safe
// for concurrent use on its own: the caller (the DAG façade, spec component
// E) serialises every mutation behind its single writer permit and calls
// Snapshot to hand readers an immutable view.
//
// Structural sharing discipline: Snapshot always allocates fresh top-level
// containers (maps, and the outer topoSort slice), so a caller holding an
// old snapshot never observes a later Insert. Within a snapshot's lifetime,
// leaf containers (a children[p] set, a topoSort[r] inner slice) may be
// shared by reference with the live Index; Insert never mutates a leaf
// container that a live snapshot might already reference — it always
// replaces it with a freshly built one (see insertChild/insertJustifiedBy)
// — and topoSort[r] is only ever extended by append, never rewritten in
// place at an existing index, which Go's slice semantics make safe to share.
type Index struct {
	live *DagRepresentation
}

// NewIndex returns an empty DAG index.
func NewIndex() *Index {
	return &Index{live: empty()}
}

// Snapshot returns an immutable view of the index's current state.
func (idx *Index) Snapshot() *DagRepresentation {
	snap := &DagRepresentation{
		Metadata:    make(map[BlockHash]*BlockMetadata, len(idx.live.Metadata)),
		children:    make(map[BlockHash]map[BlockHash]struct{}, len(idx.live.children)),
		JustifiedBy: make(map[BlockHash]map[BlockHash]struct{}, len(idx.live.JustifiedBy)),
		Latest:      make(map[string]latestEntry, len(idx.live.Latest)),
		TopoSort:    make([][]BlockHash, len(idx.live.TopoSort)),
	}
	for k, v := range idx.live.Metadata {
		snap.Metadata[k] = v // BlockMetadata is immutable after creation
	}
	for k, v := range idx.live.children {
		snap.children[k] = v // leaf set, replaced wholesale on mutation, safe to share
	}
	for k, v := range idx.live.JustifiedBy {
		snap.JustifiedBy[k] = v
	}
	for k, v := range idx.live.Latest {
		snap.Latest[k] = v
	}
	copy(snap.TopoSort, idx.live.TopoSort) // new outer backing array; inner slices shared, append-only
	return snap
}

// Clear resets the index to empty, resetting all five derived stores
// (metadata, children, justifiedBy, latest, topoSort) — see the Open
// Question recorded in DESIGN.md about the source's asymmetric clear.
func (idx *Index) Clear() {
	idx.live = empty()
}

// Insert adds one block's metadata to the index, updating children,
// justifiedBy, latest and topoSort. It assumes v.Validate() has already
// been checked by the caller (the façade rejects MalformedValidator before
// ever reaching the index).
func (idx *Index) Insert(meta *BlockMetadata) {
	idx.live.Metadata[meta.Hash] = meta

	for _, p := range meta.Parents {
		idx.insertChild(p, meta.Hash)
	}
	for _, j := range meta.Justifications {
		idx.insertJustifiedBy(j.LatestHash, meta.Hash)
	}

	idx.insertTopoSort(meta.Rank, meta.Hash)

	if !meta.Validator.Empty() {
		idx.live.Latest[meta.Validator.key()] = latestEntry{Validator: meta.Validator, Hash: meta.Hash}
	}
	for _, v := range meta.NewlyBondedSince() {
		if v.Empty() || v.key() == meta.Validator.key() {
			continue
		}
		if _, exists := idx.live.Latest[v.key()]; !exists {
			idx.live.Latest[v.key()] = latestEntry{Validator: v, Hash: meta.Hash}
		}
	}
}

// ComputeRank implements spec §4.4: 0 if parents is empty, else one more
// than the maximum rank among parents already known to this index. A
// parent hash not present in metadata (the "explicitly unknown parent of
// the first block" exception in spec §3 invariant 1) is skipped rather than
// treated as an error, so it contributes nothing to the max.
func (idx *Index) ComputeRank(parents []BlockHash) Rank {
	var max Rank
	known := false
	for _, p := range parents {
		if m, ok := idx.live.Metadata[p]; ok {
			if !known || m.Rank > max {
				max = m.Rank
				known = true
			}
		}
	}
	if !known {
		return 0
	}
	return max + 1
}

func (idx *Index) insertChild(parent, child BlockHash) {
	old := idx.live.children[parent]
	next := make(map[BlockHash]struct{}, len(old)+1)
	for k := range old {
		next[k] = struct{}{}
	}
	next[child] = struct{}{}
	idx.live.children[parent] = next
}

func (idx *Index) insertJustifiedBy(justified, justifier BlockHash) {
	old := idx.live.JustifiedBy[justified]
	next := make(map[BlockHash]struct{}, len(old)+1)
	for k := range old {
		next[k] = struct{}{}
	}
	next[justifier] = struct{}{}
	idx.live.JustifiedBy[justified] = next
}

func (idx *Index) insertTopoSort(r Rank, hash BlockHash) {
	for len(idx.live.TopoSort) <= int(r) {
		idx.live.TopoSort = append(idx.live.TopoSort, nil)
	}
	idx.live.TopoSort[r] = append(idx.live.TopoSort[r], hash)
}
