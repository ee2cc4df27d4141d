package audit

import "context"

// Sink accepts audit events. The core only guarantees an event was handed
// to the sink; durability is the sink's own contract.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Store is a sink that can also list what it holds, for inspection and
// tests.
type Store interface {
	Sink
	ListByFingerprint(ctx context.Context, fingerprint string) ([]Event, error)
}
