// Package collab defines the small capability set the consensus core
// consumes from the rest of the node: block payload storage, peer
// broadcast, a monotonic clock, and best-effort metrics. Per the design
// note that effect-polymorphism here needs no interface hierarchy, this is
// a configuration record of function-typed fields rather than a set of
// narrow interfaces — callers wire in whichever collaborator implementation
// fits (gRPC, bbolt, Postgres, or an in-memory fake for tests).
package collab

// Collaborators bundles every capability the core may call out for. A nil
// field is valid and means "this capability is unused"; callers nil-check
// before invoking.
type Collaborators struct {
	BlockStorePut           func(hash [32]byte, payload []byte) error
	BlockStoreGet           func(hash [32]byte) ([]byte, bool, error)
	BroadcastStreamToPeers  func(tag string, payload []byte) error
	ClockNowMillis          func() int64
	MetricsIncrementCounter func(name string)
}

// Noop returns a Collaborators where every capability is a harmless no-op,
// for callers (tests, the in-memory store variant) that want the full
// record without wiring real collaborators.
func Noop() Collaborators {
	return Collaborators{
		BlockStorePut:           func([32]byte, []byte) error { return nil },
		BlockStoreGet:           func([32]byte) ([]byte, bool, error) { return nil, false, nil },
		BroadcastStreamToPeers:  func(string, []byte) error { return nil },
		ClockNowMillis:          func() int64 { return 0 },
		MetricsIncrementCounter: func(string) {},
	}
}
