package dagstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mezonai/dagnode/internal/dagcore"
)

func validator(b byte) dagcore.ValidatorId {
	v := make(dagcore.ValidatorId, 32)
	for i := range v {
		v[i] = b
	}
	return v
}

func hash(b byte) dagcore.BlockHash {
	var h dagcore.BlockHash
	h[0] = b
	return h
}

func meta(h dagcore.BlockHash, parents []dagcore.BlockHash, val dagcore.ValidatorId) *dagcore.BlockMetadata {
	return &dagcore.BlockMetadata{Hash: h, Parents: parents, Validator: val}
}

// Scenario 3, façade-level: a malformed validator is rejected and leaves
// the store untouched.
func TestInsertRejectsMalformedValidator(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	defer s.Close()

	bad := make(dagcore.ValidatorId, 16)
	err = s.Insert(meta(hash(1), nil, bad))
	require.Error(t, err)
	require.False(t, s.Contains(hash(1)))
}

// P2: after close+reopen, the snapshot equals the one observed just before
// close.
func TestRoundTripDurability(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)

	require.NoError(t, s.Insert(meta(hash(1), nil, validator('A'))))
	require.NoError(t, s.Insert(meta(hash(2), []dagcore.BlockHash{hash(1)}, validator('B'))))
	before := s.Snapshot()
	require.NoError(t, s.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()
	after := s2.Snapshot()

	require.Equal(t, before.Metadata, after.Metadata)
	require.Equal(t, before.Latest, after.Latest)
	require.Equal(t, before.TopoSort, after.TopoSort)
}

// Scenario 4 / P3: appending garbage to the latest-messages log is
// tolerated and reopening yields the pre-crash snapshot.
func TestCrashToleranceGarbageInLatestMessagesLog(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Insert(meta(hash(1), nil, validator('A'))))
	require.NoError(t, s.Insert(meta(hash(2), []dagcore.BlockHash{hash(1)}, validator('B'))))
	require.NoError(t, s.Insert(meta(hash(3), []dagcore.BlockHash{hash(2)}, validator('A'))))
	before := s.Snapshot()
	require.NoError(t, s.Close())

	garbage := make([]byte, 64)
	for i := range garbage {
		garbage[i] = 0xDE
	}
	f, err := os.OpenFile(filepath.Join(dir, "latest-messages-log"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write(garbage)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()
	after := s2.Snapshot()
	require.Equal(t, before.Latest, after.Latest)
	require.Equal(t, before.Metadata, after.Metadata)
}

// P4: checkpoints interleaved with inserts must not change the final
// snapshot versus an equivalent run with no checkpoints.
func TestCheckpointsDoNotChangeFinalSnapshot(t *testing.T) {
	build := func(dir string, checkpointEvery int) *dagcore.DagRepresentation {
		s, err := Open(DefaultConfig(dir))
		require.NoError(t, err)
		defer s.Close()

		var prev dagcore.BlockHash
		for i := 0; i < 10; i++ {
			h := hash(byte(i + 1))
			var parents []dagcore.BlockHash
			if i > 0 {
				parents = []dagcore.BlockHash{prev}
			}
			require.NoError(t, s.Insert(meta(h, parents, validator(byte('A'+i%3)))))
			prev = h
			if checkpointEvery > 0 && (i+1)%checkpointEvery == 0 {
				require.NoError(t, s.Checkpoint())
			}
		}
		return s.Snapshot()
	}

	withCheckpoints := build(t.TempDir(), 3)
	withoutCheckpoints := build(t.TempDir(), 0)
	require.Equal(t, withoutCheckpoints.Metadata, withCheckpoints.Metadata)
	require.Equal(t, withoutCheckpoints.Latest, withCheckpoints.Latest)
	require.Equal(t, withoutCheckpoints.TopoSort, withCheckpoints.TopoSort)
}

// P5 at the façade level, persistent variant: clear must also reset disk
// state so a reopen sees nothing.
func TestClearPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Insert(meta(hash(1), nil, validator('A'))))
	require.NoError(t, s.Clear())
	require.False(t, s.Contains(hash(1)))
	require.NoError(t, s.Close())

	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()
	require.False(t, s2.Contains(hash(1)))
	require.Empty(t, s2.Snapshot().Metadata)
}

func TestOperationsFailAfterClose(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.Error(t, s.Insert(meta(hash(1), nil, validator('A'))))
}

func TestInMemoryCheckpointIsNoOp(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Checkpoint())
}
