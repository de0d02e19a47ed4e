package checkpointsign

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedOf(b byte) []byte {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	return seed
}

func TestSignFileAndVerifyFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0-9")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint-segment-bytes"), 0o644))

	key := NewSigningKey(seedOf(1))
	require.NoError(t, key.SignFile(path))
	require.NoError(t, VerifyFile(path, key.PublicKey()))
}

func TestVerifyFileRejectsTamperedSegment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0-9")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint-segment-bytes"), 0o644))

	key := NewSigningKey(seedOf(1))
	require.NoError(t, key.SignFile(path))

	require.NoError(t, os.WriteFile(path, []byte("tampered-segment-bytes!"), 0o644))
	err := VerifyFile(path, key.PublicKey())
	require.Error(t, err)
}

func TestVerifyFileRejectsWrongKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0-9")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint-segment-bytes"), 0o644))

	signer := NewSigningKey(seedOf(1))
	impostor := NewSigningKey(seedOf(2))
	require.NoError(t, signer.SignFile(path))

	err := VerifyFile(path, impostor.PublicKey())
	require.Error(t, err)
}

func TestEncodeDecodeSignatureRoundTrip(t *testing.T) {
	key := NewSigningKey(seedOf(3))
	sig := key.Sign([]byte("some segment"))

	decoded, err := DecodeSignature(EncodeSignature(sig))
	require.NoError(t, err)
	require.Equal(t, sig.SignatureAlgorithm, decoded.SignatureAlgorithm)
	require.Equal(t, sig.KeyId, decoded.KeyId)
	require.Equal(t, sig.Signature, decoded.Signature)
}
