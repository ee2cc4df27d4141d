package validators

import (
	"context"
	"fmt"
	"net"

	"certgate/internal/validation"
)

// sourceCIDRs ensures the request was submitted from a known network. The
// client address comes from the request-handling collaborator.
type sourceCIDRs struct {
	cidrs []string
}

func NewSourceCIDRs(params validation.Params) (validation.Validator, error) {
	cidrs, err := params.StringSlice("cidrs")
	if err != nil {
		return nil, err
	}
	if len(cidrs) == 0 {
		return nil, fmt.Errorf("required parameter %q is missing", "cidrs")
	}
	if err := parseCIDRs(cidrs); err != nil {
		return nil, fmt.Errorf("cidrs: %w", err)
	}
	return &sourceCIDRs{cidrs: cidrs}, nil
}

func (v *sourceCIDRs) Name() string { return "source_cidrs" }

func (v *sourceCIDRs) Check(_ context.Context, in validation.Input) validation.Outcome {
	ip := net.ParseIP(in.ClientAddr)
	if ip == nil {
		return validation.Fail(v.Name(), ReasonSourceNotAllowed,
			fmt.Sprintf("no network matched the request source %q", in.ClientAddr))
	}
	if !matchNetworks(ip, v.cidrs) {
		return validation.Fail(v.Name(), ReasonSourceNotAllowed,
			fmt.Sprintf("no network matched the request source %q", in.ClientAddr))
	}
	return validation.Pass(v.Name())
}
