package validators_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"certgate/internal/csr"
	"certgate/internal/validation"
	"certgate/internal/validation/validators"
	"certgate/pkg/testutil/pki"
)

// parseCSR generates and parses a throwaway request for validator tests.
func parseCSR(t *testing.T, commonName string, opts ...pki.CSROption) *csr.Request {
	t.Helper()
	pemCSR, _ := pki.GenerateCSR(t, commonName, 2048, opts...)
	req, err := csr.Parse(pemCSR)
	require.NoError(t, err)
	return req
}

func mustParse(t *testing.T, pemCSR []byte) *csr.Request {
	t.Helper()
	req, err := csr.Parse(pemCSR)
	require.NoError(t, err)
	return req
}

func inputFor(req *csr.Request) validation.Input {
	return validation.Input{Request: req}
}

func build(t *testing.T, factory validation.Factory, params validation.Params) validation.Validator {
	t.Helper()
	v, err := factory(params)
	require.NoError(t, err)
	return v
}

func TestRegisterBuiltins(t *testing.T) {
	reg := validation.NewRegistry()
	validators.RegisterBuiltins(reg, validators.Deps{})

	require.ElementsMatch(t, []string{
		"common_name",
		"alternative_names",
		"alternative_names_ip",
		"blacklist_names",
		"extensions",
		"key_usage",
		"ext_key_usage",
		"ca_status",
		"key_strength",
		"csr_signature",
		"source_cidrs",
		"server_group",
	}, reg.Names())
}
