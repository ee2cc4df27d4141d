// Package identity models the already-authenticated caller handed to the
// issuance core. Authentication itself happens upstream; domain code only
// ever sees the resolved result.
package identity

// Caller is the resolved identity submitting a certificate request.
type Caller struct {
	// Subject is the authenticated principal, e.g. a username or service
	// account name.
	Subject string
	// Groups the principal belongs to, as reported by the directory.
	Groups []string
	// Attributes carries additional claims from the authentication layer.
	Attributes map[string]string
}

// IsZero reports whether no identity was resolved.
func (c Caller) IsZero() bool {
	return c.Subject == "" && len(c.Groups) == 0 && len(c.Attributes) == 0
}

// InGroup reports membership in the named group.
func (c Caller) InGroup(group string) bool {
	for _, g := range c.Groups {
		if g == group {
			return true
		}
	}
	return false
}
