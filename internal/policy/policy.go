// Package policy loads named validator chains and resolves them for the
// issuance pipeline. Policies are immutable snapshots: reload swaps the
// whole set atomically so in-flight evaluations keep the chain they started
// with.
package policy

import (
	"time"

	"certgate/internal/validation"
)

// Profile describes how an accepted request is signed.
type Profile struct {
	// Backend names the signing backend this policy uses.
	Backend string
	// TTL is the issued certificate's lifetime. Signing fails when it
	// would outlive the authority's own validity window.
	TTL time.Duration
}

// Policy is a named, ordered validator chain plus its signing profile.
// Shared and read-only; many requests may evaluate it concurrently.
type Policy struct {
	Name        string
	Description string
	Profile     Profile
	Chain       []validation.Step
}
