package genesis

import (
	"sync"

	"github.com/mezonai/dagnode/internal/corestore"
)

// LastApprovedSlot is the single-assignment, concurrency-safe cell spec §9
// describes: once Set succeeds, every later Set call is rejected rather than
// overwriting it. This lets both the local ceremony and an incoming gossiped
// ApprovedBlock race to populate the slot with only the first write
// sticking.
type LastApprovedSlot struct {
	mu  sync.Mutex
	val *ApprovedBlock
}

// Set assigns block to the slot if it is still empty. It returns
// KindGenesisUnavailable-free success on the winning write, and an error on
// every subsequent attempt.
func (s *LastApprovedSlot) Set(block *ApprovedBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.val != nil {
		return corestore.New(corestore.KindGenesisUnavailable, "last-approved slot already assigned")
	}
	s.val = block
	return nil
}

// Get returns the slot's value, or ok=false while the ceremony is still
// open — readers retry rather than block. No error value is returned for an
// empty slot.
func (s *LastApprovedSlot) Get() (*ApprovedBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.val, s.val != nil
}
