package genesis

import (
	"github.com/mezonai/dagnode/internal/corestore"
	"github.com/mezonai/dagnode/internal/wire"
)

// Wire messages exchanged during the ceremony (spec §6), encoded with the
// same hand-written protobuf-wire-format codec internal/dagcore uses for
// block metadata (see internal/wire's package doc).

const (
	fieldCandBlock        = 1
	fieldCandRequiredSigs = 2

	fieldUnapprovedCandidate = 1
	fieldUnapprovedTimestamp = 2
	fieldUnapprovedDuration  = 3

	fieldApprovalCandidate = 1
	fieldApprovalPubkey    = 2
	fieldApprovalAlgorithm = 3
	fieldApprovalSig       = 4

	fieldApprovedCandidate  = 1
	fieldApprovedSignatures = 2
)

// EncodeCandidate builds the canonical bytes of an ApprovedBlockCandidate
// (the block payload plus the required-signature count), the exact bytes
// that get Blake2b-256 hashed and Ed25519-signed.
func EncodeCandidate(block []byte, requiredSigs uint32) []byte {
	w := wire.NewWriter()
	w.BytesField(fieldCandBlock, block)
	w.Uint64(fieldCandRequiredSigs, uint64(requiredSigs))
	return w.Bytes()
}

// EncodeUnapprovedBlock frames an UnapprovedBlock announcement of a pending
// ceremony (candidate, start timestamp, duration). Ceremony.Run does not use
// it; its periodic broadcast carries the bare candidate bytes.
func EncodeUnapprovedBlock(candidate []byte, timestampMillis, durationMillis int64) []byte {
	w := wire.NewWriter()
	w.Message(fieldUnapprovedCandidate, candidate)
	w.Uint64(fieldUnapprovedTimestamp, uint64(timestampMillis))
	w.Uint64(fieldUnapprovedDuration, uint64(durationMillis))
	return w.Bytes()
}

// EncodeBlockApproval frames one validator's signature for gossip.
func EncodeBlockApproval(candidate []byte, a Approval) []byte {
	w := wire.NewWriter()
	w.Message(fieldApprovalCandidate, candidate)
	w.BytesField(fieldApprovalPubkey, a.Validator)
	w.BytesField(fieldApprovalAlgorithm, []byte("ed25519"))
	w.BytesField(fieldApprovalSig, a.Signature)
	return w.Bytes()
}

// DecodeBlockApproval parses a gossiped BlockApproval message.
func DecodeBlockApproval(data []byte) (candidate []byte, approval Approval, err error) {
	r := wire.NewReader(data)
	for !r.Done() {
		field, wt, ok, err := r.Next()
		if err != nil {
			return nil, Approval{}, err
		}
		if !ok {
			break
		}
		switch field {
		case fieldApprovalCandidate:
			b, err := r.Bytes()
			if err != nil {
				return nil, Approval{}, err
			}
			candidate = b
		case fieldApprovalPubkey:
			b, err := r.Bytes()
			if err != nil {
				return nil, Approval{}, err
			}
			approval.Validator = b
		case fieldApprovalAlgorithm:
			b, err := r.Bytes() // must be "ed25519"; checked, not retained
			if err != nil {
				return nil, Approval{}, err
			}
			if string(b) != "ed25519" {
				return nil, Approval{}, corestore.New(corestore.KindInvalidApprovalSignature, "unsupported signature algorithm "+string(b))
			}
		case fieldApprovalSig:
			b, err := r.Bytes()
			if err != nil {
				return nil, Approval{}, err
			}
			approval.Signature = b
		default:
			if err := r.Skip(wt); err != nil {
				return nil, Approval{}, err
			}
		}
	}
	return candidate, approval, nil
}

// EncodeApprovedBlock frames the final materialized ceremony result.
func EncodeApprovedBlock(result *ApprovedBlock) []byte {
	w := wire.NewWriter()
	w.Message(fieldApprovedCandidate, result.Candidate)
	for _, a := range result.Approvals {
		aw := wire.NewWriter()
		aw.BytesField(fieldApprovalPubkey, a.Validator)
		aw.BytesField(fieldApprovalAlgorithm, []byte("ed25519"))
		aw.BytesField(fieldApprovalSig, a.Signature)
		w.Message(fieldApprovedSignatures, aw.Bytes())
	}
	return w.Bytes()
}
