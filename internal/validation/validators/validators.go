// Package validators holds the built-in validator set. Each validator is an
// independently pluggable check registered under a stable identifier;
// policies compose them into ordered chains.
package validators

import (
	"net"
	"strings"

	"certgate/internal/directory"
	"certgate/internal/validation"
)

// Reason codes shared by the built-in validators. These are the stable
// machine-readable identifiers returned to callers on rejection.
const (
	ReasonTooManyCN          = "TOO_MANY_CN"
	ReasonCNRequired         = "CN_REQUIRED"
	ReasonSANRequired        = "SAN_REQUIRED"
	ReasonCNNotAllowed       = "CN_NOT_ALLOWED"
	ReasonSANNotAllowed      = "SAN_NOT_ALLOWED"
	ReasonIPNotAllowed       = "IP_NOT_ALLOWED"
	ReasonNameBlacklisted    = "NAME_BLACKLISTED"
	ReasonExtensionDenied    = "EXTENSION_NOT_ALLOWED"
	ReasonKeyUsageDenied     = "KEY_USAGE_NOT_ALLOWED"
	ReasonExtKeyUsageDenied  = "EXT_KEY_USAGE_NOT_ALLOWED"
	ReasonCAStatusMismatch   = "CA_STATUS_MISMATCH"
	ReasonKeyTooWeak         = "KEY_TOO_WEAK"
	ReasonKeyAlgoNotAllowed  = "KEY_ALGORITHM_NOT_ALLOWED"
	ReasonBadSignature       = "BAD_SIGNATURE"
	ReasonGroupMismatch      = "GROUP_MISMATCH"
	ReasonSourceNotAllowed   = "SOURCE_NOT_ALLOWED"
	ReasonDirectoryError     = "DIRECTORY_ERROR"
	ReasonMalformedExtension = "MALFORMED_EXTENSION"
)

// Deps are the external collaborators built-in validators may consume.
type Deps struct {
	Directory directory.Directory
}

// RegisterBuiltins installs every built-in validator factory. Call once at
// startup before policies are loaded.
func RegisterBuiltins(reg *validation.Registry, deps Deps) {
	reg.Register("common_name", NewCommonName)
	reg.Register("alternative_names", NewAlternativeNames)
	reg.Register("alternative_names_ip", NewAlternativeNamesIP)
	reg.Register("blacklist_names", NewBlacklistNames)
	reg.Register("extensions", NewExtensions)
	reg.Register("key_usage", NewKeyUsage)
	reg.Register("ext_key_usage", NewExtKeyUsage)
	reg.Register("ca_status", NewCAStatus)
	reg.Register("key_strength", NewKeyStrength)
	reg.Register("csr_signature", NewSignature)
	reg.Register("source_cidrs", NewSourceCIDRs)
	reg.Register("server_group", func(params validation.Params) (validation.Validator, error) {
		return NewServerGroup(deps.Directory, params)
	})
}

// matchDomain reports whether name matches one of the allowed entries.
// Entries starting with a dot are suffix matches (".example.com" admits any
// subdomain); other entries must match exactly. Comparison is
// case-insensitive.
func matchDomain(name string, allowed []string) bool {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	for _, entry := range allowed {
		entry = strings.ToLower(entry)
		if strings.HasPrefix(entry, ".") {
			if strings.HasSuffix(name, entry) {
				return true
			}
			continue
		}
		if name == entry {
			return true
		}
	}
	return false
}

// matchNetworks reports whether ip falls inside any of the CIDR ranges.
// Unparseable ranges are skipped; the factory validates them at load time.
func matchNetworks(ip net.IP, cidrs []string) bool {
	for _, raw := range cidrs {
		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// parseCIDRs validates a list of CIDR ranges at policy load time.
func parseCIDRs(cidrs []string) error {
	for _, raw := range cidrs {
		if _, _, err := net.ParseCIDR(raw); err != nil {
			return err
		}
	}
	return nil
}
