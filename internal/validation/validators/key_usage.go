package validators

import (
	"context"
	"fmt"
	"strings"

	"certgate/internal/csr"
	"certgate/internal/validation"
)

// keyUsage ensures only accepted key usages are requested. Allowed usages
// are the RFC 5280 long names, e.g. digitalSignature or keyEncipherment.
type keyUsage struct {
	allowed map[string]bool
}

func NewKeyUsage(params validation.Params) (validation.Validator, error) {
	usages, err := params.StringSlice("allowed_usage")
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(usages))
	for _, u := range usages {
		if !isKnownKeyUsage(u) {
			return nil, fmt.Errorf("unknown key usage %q", u)
		}
		allowed[u] = true
	}
	return &keyUsage{allowed: allowed}, nil
}

func isKnownKeyUsage(name string) bool {
	for _, known := range csr.KeyUsageNames {
		if known == name {
			return true
		}
	}
	return false
}

func (v *keyUsage) Name() string { return "key_usage" }

func (v *keyUsage) Check(_ context.Context, in validation.Input) validation.Outcome {
	usages, err := in.Request.KeyUsages()
	if err != nil {
		return validation.Fail(v.Name(), ReasonMalformedExtension, err.Error())
	}

	var denied []string
	for _, u := range usages {
		if !v.allowed[u] {
			denied = append(denied, u)
		}
	}
	if len(denied) > 0 {
		return validation.Fail(v.Name(), ReasonKeyUsageDenied,
			fmt.Sprintf("found some prohibited key usages: %s", strings.Join(denied, ", ")))
	}
	return validation.Pass(v.Name())
}

// extKeyUsage ensures only accepted extended key usages are requested.
// Allowed usages may be short names (serverAuth) or dotted OIDs.
type extKeyUsage struct {
	allowed map[string]bool
}

func NewExtKeyUsage(params validation.Params) (validation.Validator, error) {
	usages, err := params.StringSlice("allowed_usage")
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(usages))
	for _, u := range usages {
		name, ok := normalizeExtKeyUsage(u)
		if !ok {
			return nil, fmt.Errorf("unknown usage: %s", u)
		}
		allowed[name] = true
	}
	return &extKeyUsage{allowed: allowed}, nil
}

// normalizeExtKeyUsage resolves a policy entry to the short name the parser
// reports: known short names pass through, known OIDs map to their short
// name, and unknown dotted OIDs are kept verbatim.
func normalizeExtKeyUsage(entry string) (string, bool) {
	for _, short := range csr.ExtKeyUsageNames {
		if short == entry {
			return entry, true
		}
	}
	if short, ok := csr.ExtKeyUsageNames[entry]; ok {
		return short, true
	}
	if isDottedOID(entry) {
		return entry, true
	}
	return "", false
}

func isDottedOID(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for _, r := range part {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return strings.Contains(s, ".")
}

func (v *extKeyUsage) Name() string { return "ext_key_usage" }

func (v *extKeyUsage) Check(_ context.Context, in validation.Input) validation.Outcome {
	usages, err := in.Request.ExtKeyUsages()
	if err != nil {
		return validation.Fail(v.Name(), ReasonMalformedExtension, err.Error())
	}

	var denied []string
	for _, u := range usages {
		if !v.allowed[u] {
			denied = append(denied, u)
		}
	}
	if len(denied) > 0 {
		return validation.Fail(v.Name(), ReasonExtKeyUsageDenied,
			fmt.Sprintf("found some prohibited key usages: %s", strings.Join(denied, ", ")))
	}
	return validation.Pass(v.Name())
}
