package genesis

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/stretchr/testify/require"
)

type keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return keypair{pub: pub, priv: priv}
}

func sign(k keypair, digest [32]byte) Approval {
	return Approval{Validator: k.pub, Signature: ed25519.Sign(k.priv, digest[:])}
}

// Scenario 6: exact threshold met before the deadline; approval happens
// once the clock has passed the deadline.
func TestExactThresholdApproval(t *testing.T) {
	candidate := []byte("candidate-6")
	digest := blake2b.Sum256(candidate)
	keys := make([]keypair, 10)
	validators := make([][]byte, 10)
	for i := range keys {
		keys[i] = newKeypair(t)
		validators[i] = keys[i].pub
	}

	clock := NewFakeClock(time.Unix(0, 0))
	c := New(Config{
		Candidate:  candidate,
		Validators: validators,
		Threshold:  10,
		Deadline:   time.Unix(0, 0).Add(30 * time.Millisecond),
		Clock:      clock,
	})

	for _, k := range keys {
		require.NoError(t, c.AddApproval(sign(k, digest)))
	}
	_, approved := c.Approved()
	require.False(t, approved, "threshold met but deadline not yet reached")

	clock.Advance(31 * time.Millisecond)
	c.mu.Lock()
	c.checkTransition()
	c.mu.Unlock()

	result, approved := c.Approved()
	require.True(t, approved)
	require.Len(t, result.Approvals, 10)
}

// Scenario 7: partial then complete.
func TestPartialThenCompleteApproval(t *testing.T) {
	candidate := []byte("candidate-7")
	digest := blake2b.Sum256(candidate)
	keys := make([]keypair, 10)
	validators := make([][]byte, 10)
	for i := range keys {
		keys[i] = newKeypair(t)
		validators[i] = keys[i].pub
	}

	clock := NewFakeClock(time.Unix(0, 0))
	c := New(Config{
		Candidate:  candidate,
		Validators: validators,
		Threshold:  10,
		Deadline:   time.Unix(0, 0).Add(30 * time.Millisecond),
		Clock:      clock,
	})

	for _, k := range keys[:5] {
		require.NoError(t, c.AddApproval(sign(k, digest)))
	}
	clock.Advance(31 * time.Millisecond)
	c.mu.Lock()
	c.checkTransition()
	c.mu.Unlock()
	_, approved := c.Approved()
	require.False(t, approved, "only 5 of 10 signatures collected")

	for _, k := range keys[5:] {
		require.NoError(t, c.AddApproval(sign(k, digest)))
	}
	result, approved := c.Approved()
	require.True(t, approved)
	require.Len(t, result.Approvals, 10)
}

// Scenario 8: untrusted approver rejected.
func TestUntrustedApproverRejected(t *testing.T) {
	candidate := []byte("candidate-8")
	digest := blake2b.Sum256(candidate)
	trusted := newKeypair(t)
	outsider := newKeypair(t)

	c := New(Config{
		Candidate:  candidate,
		Validators: [][]byte{trusted.pub},
		Threshold:  1,
		Deadline:   time.Now().Add(time.Hour),
	})

	err := c.AddApproval(sign(outsider, digest))
	require.Error(t, err)
	require.Equal(t, 0, len(c.approvals))
	_, approved := c.Approved()
	require.False(t, approved)
}

// Scenario 9: N=0 fast path approves immediately regardless of deadline.
func TestThresholdZeroFastPath(t *testing.T) {
	c := New(Config{
		Candidate:  []byte("candidate-9"),
		Validators: nil,
		Threshold:  0,
		Deadline:   time.Now().Add(time.Hour),
	})
	result, approved := c.Approved()
	require.True(t, approved)
	require.Empty(t, result.Approvals)
}

// P6: addApproval is idempotent per distinct signature.
func TestAddApprovalIsIdempotent(t *testing.T) {
	candidate := []byte("candidate-p6")
	digest := blake2b.Sum256(candidate)
	k := newKeypair(t)

	c := New(Config{
		Candidate:  candidate,
		Validators: [][]byte{k.pub},
		Threshold:  1,
		Deadline:   time.Now(),
	})

	a := sign(k, digest)
	require.NoError(t, c.AddApproval(a))
	sizeAfterFirst := len(c.approvals)
	require.NoError(t, c.AddApproval(a))
	require.Equal(t, sizeAfterFirst, len(c.approvals))
}

func TestInvalidSignatureRejected(t *testing.T) {
	candidate := []byte("candidate-bad-sig")
	k := newKeypair(t)
	c := New(Config{
		Candidate:  candidate,
		Validators: [][]byte{k.pub},
		Threshold:  1,
		Deadline:   time.Now().Add(time.Hour),
	})
	bogus := Approval{Validator: k.pub, Signature: make([]byte, ed25519.SignatureSize)}
	err := c.AddApproval(bogus)
	require.Error(t, err)
}

func TestWaitUnblocksOnApproval(t *testing.T) {
	candidate := []byte("candidate-wait")
	k := newKeypair(t)
	digest := blake2b.Sum256(candidate)
	c := New(Config{
		Candidate:  candidate,
		Validators: [][]byte{k.pub},
		Threshold:  1,
		Deadline:   time.Now(),
	})
	require.NoError(t, c.AddApproval(sign(k, digest)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := c.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, result.Approvals, 1)
}

func TestWaitReturnsErrorOnCancellation(t *testing.T) {
	c := New(Config{
		Candidate:  []byte("candidate-cancel"),
		Validators: nil,
		Threshold:  1,
		Deadline:   time.Now().Add(time.Hour),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Wait(ctx)
	require.Error(t, err)
}

func TestLastApprovedSlotRejectsSecondWrite(t *testing.T) {
	var slot LastApprovedSlot
	require.NoError(t, slot.Set(&ApprovedBlock{Candidate: []byte("first")}))
	err := slot.Set(&ApprovedBlock{Candidate: []byte("second")})
	require.Error(t, err)

	got, ok := slot.Get()
	require.True(t, ok)
	require.Equal(t, []byte("first"), got.Candidate)
}
