package validators

import (
	"context"
	"fmt"

	"certgate/internal/validation"
)

// alternativeNames checks DNS subject alternative names against the known
// domain suffixes. Non-DNS alternative names (IPs, emails, URIs) are refused
// here; use alternative_names_ip when IP entries are expected.
type alternativeNames struct {
	allowedDomains []string
}

func NewAlternativeNames(params validation.Params) (validation.Validator, error) {
	domains, err := params.StringSlice("allowed_domains")
	if err != nil {
		return nil, err
	}
	return &alternativeNames{allowedDomains: domains}, nil
}

func (v *alternativeNames) Name() string { return "alternative_names" }

func (v *alternativeNames) Check(_ context.Context, in validation.Input) validation.Outcome {
	req := in.Request.CertificateRequest()

	if len(req.IPAddresses) > 0 || len(req.EmailAddresses) > 0 || len(req.URIs) > 0 {
		return validation.Fail(v.Name(), ReasonSANNotAllowed,
			"only DNS alternative names are allowed")
	}

	for _, name := range req.DNSNames {
		if !matchDomain(name, v.allowedDomains) {
			return validation.Fail(v.Name(), ReasonSANNotAllowed,
				fmt.Sprintf("domain %q not allowed (doesn't match known domains)", name))
		}
	}
	return validation.Pass(v.Name())
}

// alternativeNamesIP additionally admits IP alternative names from known
// network ranges.
type alternativeNamesIP struct {
	allowedDomains  []string
	allowedNetworks []string
}

func NewAlternativeNamesIP(params validation.Params) (validation.Validator, error) {
	domains, err := params.StringSlice("allowed_domains")
	if err != nil {
		return nil, err
	}
	networks, err := params.StringSlice("allowed_networks")
	if err != nil {
		return nil, err
	}
	if err := parseCIDRs(networks); err != nil {
		return nil, fmt.Errorf("allowed_networks: %w", err)
	}
	return &alternativeNamesIP{allowedDomains: domains, allowedNetworks: networks}, nil
}

func (v *alternativeNamesIP) Name() string { return "alternative_names_ip" }

func (v *alternativeNamesIP) Check(_ context.Context, in validation.Input) validation.Outcome {
	req := in.Request.CertificateRequest()

	if len(req.EmailAddresses) > 0 || len(req.URIs) > 0 {
		return validation.Fail(v.Name(), ReasonSANNotAllowed,
			"only DNS and IP alternative names are allowed")
	}

	for _, name := range req.DNSNames {
		if !matchDomain(name, v.allowedDomains) {
			return validation.Fail(v.Name(), ReasonSANNotAllowed,
				fmt.Sprintf("domain %q not allowed (doesn't match known domains)", name))
		}
	}
	for _, ip := range req.IPAddresses {
		if !matchNetworks(ip, v.allowedNetworks) {
			return validation.Fail(v.Name(), ReasonIPNotAllowed,
				fmt.Sprintf("IP %q not allowed (doesn't match known networks)", ip))
		}
	}
	return validation.Pass(v.Name())
}
