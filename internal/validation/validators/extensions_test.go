package validators_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"certgate/internal/validation"
	"certgate/internal/validation/validators"
	"certgate/pkg/testutil/pki"
)

func TestExtensions(t *testing.T) {
	t.Run("allowed by name", func(t *testing.T) {
		v := build(t, validators.NewExtensions, validation.Params{
			"allowed_extensions": []string{"subjectAltName", "keyUsage"},
		})
		req := parseCSR(t, "web01.example.com",
			pki.WithDNSNames("web01.example.com"),
			pki.WithKeyUsageBits(0))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("allowed by dotted oid", func(t *testing.T) {
		v := build(t, validators.NewExtensions, validation.Params{
			"allowed_extensions": []string{"2.5.29.17"},
		})
		req := parseCSR(t, "web01.example.com", pki.WithDNSNames("web01.example.com"))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("unlisted extension fails", func(t *testing.T) {
		v := build(t, validators.NewExtensions, validation.Params{
			"allowed_extensions": []string{"subjectAltName"},
		})
		req := parseCSR(t, "web01.example.com",
			pki.WithDNSNames("web01.example.com"),
			pki.WithKeyUsageBits(0))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonExtensionDenied, outcome.ReasonCode)
		assert.Contains(t, outcome.Reason, "keyUsage")
	})

	t.Run("no extensions always pass", func(t *testing.T) {
		v := build(t, validators.NewExtensions, validation.Params{})
		req := parseCSR(t, "web01.example.com")

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})
}
