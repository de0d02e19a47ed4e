// Package genesis implements the genesis approval ceremony (spec component
// F): a time-bounded multi-signature protocol where a fixed validator set
// signs off on a single candidate genesis block before it is materialized
// and published.
package genesis

import (
	"context"
	"crypto/ed25519"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/mezonai/dagnode/internal/clog"
	"github.com/mezonai/dagnode/internal/corestore"
)

// Approval is one validator's signature over the candidate digest.
type Approval struct {
	Validator []byte
	Signature []byte
}

// ApprovedBlock is the materialized result of a completed ceremony.
type ApprovedBlock struct {
	Candidate []byte
	Approvals []Approval
}

// Config parametrizes a ceremony.
type Config struct {
	Candidate         []byte        // canonical candidate bytes
	Validators        [][]byte      // the trusted approver set V
	Threshold         int           // N; 0 means approve as soon as the ceremony starts
	Deadline          time.Time     // T0 + D
	BroadcastInterval time.Duration // I
	Clock             Clock         // nil defaults to SystemClock
}

// Ceremony runs the genesis approval state machine described above.
type Ceremony struct {
	mu sync.Mutex

	candidate []byte
	digest    [32]byte
	trusted   map[string]struct{}
	threshold int
	deadline  int64 // unix millis
	clock     Clock

	approvals map[string]Approval // key = string(validator)
	approved  bool
	result    *ApprovedBlock

	done chan struct{} // closed exactly once, when approved becomes true
}

// New starts a ceremony for the given candidate. The digest signed by every
// validator is Blake2b-256 over the canonical candidate bytes.
func New(cfg Config) *Ceremony {
	digest := blake2b.Sum256(cfg.Candidate)
	trusted := make(map[string]struct{}, len(cfg.Validators))
	for _, v := range cfg.Validators {
		trusted[string(v)] = struct{}{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	c := &Ceremony{
		candidate: cfg.Candidate,
		digest:    digest,
		trusted:   trusted,
		threshold: cfg.Threshold,
		deadline:  cfg.Deadline.UnixMilli(),
		clock:     clock,
		approvals: map[string]Approval{},
		done:      make(chan struct{}),
	}
	c.checkTransition() // N=0 fast path: approve immediately, no signatures needed
	return c
}

// AddApproval validates and records one validator's signature, advancing
// the ceremony toward Approved if the transition condition now holds.
// A signature from an approver outside the trusted set, or one that fails
// to verify, is rejected without mutating ceremony state.
func (c *Ceremony) AddApproval(a Approval) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.trusted[string(a.Validator)]; !ok {
		return corestore.New(corestore.KindUntrustedApprover, "validator is not in the approver set")
	}
	if len(a.Validator) != ed25519.PublicKeySize || !ed25519.Verify(a.Validator, c.digest[:], a.Signature) {
		return corestore.New(corestore.KindInvalidApprovalSignature, "signature does not verify")
	}

	c.approvals[string(a.Validator)] = a // re-approval from the same validator just overwrites
	c.checkTransition()
	return nil
}

// checkTransition applies spec §4.6's condition: (t >= deadline AND
// approvals >= threshold) OR threshold == 0. Must be called with c.mu held.
func (c *Ceremony) checkTransition() {
	if c.approved {
		return
	}
	k := len(c.approvals)
	now := c.clock.NowMillis()
	if c.threshold == 0 || (now >= c.deadline && k >= c.threshold) {
		c.finalize()
	}
}

func (c *Ceremony) finalize() {
	approvals := make([]Approval, 0, len(c.approvals))
	for _, a := range c.approvals {
		approvals = append(approvals, a)
	}
	sort.Slice(approvals, func(i, j int) bool {
		return string(approvals[i].Validator) < string(approvals[j].Validator)
	})
	c.result = &ApprovedBlock{Candidate: c.candidate, Approvals: approvals}
	c.approved = true
	close(c.done)
}

// Approved reports whether the ceremony has transitioned, and if so, the
// resulting block.
func (c *Ceremony) Approved() (*ApprovedBlock, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.approved
}

// Wait blocks until the ceremony reaches Approved or ctx is cancelled.
func (c *Ceremony) Wait(ctx context.Context) (*ApprovedBlock, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run periodically broadcasts the unapproved candidate every interval and
// re-checks the time
// based transition on each tick, so a ceremony whose deadline elapses
// without any new signature arriving still completes once the threshold
// was already met. The broadcast payload is the raw candidate bytes; they
// are not wrapped with EncodeUnapprovedBlock, so no start timestamp or
// duration travels with them. Run returns once the ceremony is approved or
// ctx is cancelled.
func (c *Ceremony) Run(ctx context.Context, interval time.Duration, broadcast func([]byte) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := broadcast(c.candidate); err != nil {
				clog.Warn("GENESIS", "broadcast failed:", err)
			}
			c.mu.Lock()
			c.checkTransition()
			c.mu.Unlock()
		}
	}
}
