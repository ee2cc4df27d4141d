package validators

import (
	"context"
	"fmt"
	"net"

	"certgate/internal/validation"
)

// commonName checks the CN entry against the known domains and networks.
// Requests with multiple CN entries are refused outright, and per RFC 5280
// section 4.2.1.6 a request without a CN must carry subject alternative
// names instead.
type commonName struct {
	allowedDomains  []string
	allowedNetworks []string
}

func NewCommonName(params validation.Params) (validation.Validator, error) {
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
	return &commonName{allowedDomains: domains, allowedNetworks: networks}, nil
}

func (v *commonName) Name() string { return "common_name" }

func (v *commonName) Check(_ context.Context, in validation.Input) validation.Outcome {
	cns := in.Request.CommonNames()

	if len(cns) > 1 {
		return validation.Fail(v.Name(), ReasonTooManyCN, "too many CN entries in the request")
	}

	if len(cns) == 0 {
		if !in.Request.HasSubjectAltNames() {
			return validation.Fail(v.Name(), ReasonSANRequired,
				"alt subjects have to exist if the main subject doesn't")
		}
		return validation.Pass(v.Name())
	}

	cn := cns[0]
	if ip := net.ParseIP(cn); ip != nil {
		if !matchNetworks(ip, v.allowedNetworks) {
			return validation.Fail(v.Name(), ReasonIPNotAllowed,
				fmt.Sprintf("address %q not allowed (does not match known networks)", cn))
		}
		return validation.Pass(v.Name())
	}

	if !matchDomain(cn, v.allowedDomains) {
		return validation.Fail(v.Name(), ReasonCNNotAllowed,
			fmt.Sprintf("domain %q not allowed (does not match known domains)", cn))
	}
	return validation.Pass(v.Name())
}
