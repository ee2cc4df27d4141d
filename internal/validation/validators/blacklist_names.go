package validators

import (
	"context"
	"fmt"

	"certgate/internal/validation"
)

// blacklistNames refuses requests whose CN or DNS alternative names match a
// blocked domain list. An empty list passes everything; policies should
// disable the step instead of shipping it empty.
type blacklistNames struct {
	domains []string
}

func NewBlacklistNames(params validation.Params) (validation.Validator, error) {
	domains, err := params.StringSlice("domains")
	if err != nil {
		return nil, err
	}
	return &blacklistNames{domains: domains}, nil
}

func (v *blacklistNames) Name() string { return "blacklist_names" }

func (v *blacklistNames) Check(_ context.Context, in validation.Input) validation.Outcome {
	if len(v.domains) == 0 {
		return validation.Pass(v.Name())
	}

	for _, cn := range in.Request.CommonNames() {
		if matchDomain(cn, v.domains) {
			return validation.Fail(v.Name(), ReasonNameBlacklisted,
				fmt.Sprintf("domain %q not allowed (CN blacklisted)", cn))
		}
	}
	for _, name := range in.Request.DNSNames() {
		if matchDomain(name, v.domains) {
			return validation.Fail(v.Name(), ReasonNameBlacklisted,
				fmt.Sprintf("domain %q not allowed (alt blacklisted)", name))
		}
	}
	return validation.Pass(v.Name())
}
