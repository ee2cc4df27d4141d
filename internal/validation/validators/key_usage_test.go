package validators_test

import (
	"context"
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgate/internal/validation"
	"certgate/internal/validation/validators"
	"certgate/pkg/testutil/pki"
)

func TestKeyUsage(t *testing.T) {
	params := validation.Params{
		"allowed_usage": []string{"digitalSignature", "keyEncipherment"},
	}

	t.Run("allowed usages pass", func(t *testing.T) {
		v := build(t, validators.NewKeyUsage, params)
		req := parseCSR(t, "web01.example.com", pki.WithKeyUsageBits(0, 2))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("prohibited usage fails", func(t *testing.T) {
		v := build(t, validators.NewKeyUsage, params)
		req := parseCSR(t, "web01.example.com", pki.WithKeyUsageBits(0, 5))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonKeyUsageDenied, outcome.ReasonCode)
		assert.Contains(t, outcome.Reason, "keyCertSign")
	})

	t.Run("no keyUsage extension passes", func(t *testing.T) {
		v := build(t, validators.NewKeyUsage, params)
		req := parseCSR(t, "web01.example.com")

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("unknown usage name is a load-time error", func(t *testing.T) {
		_, err := validators.NewKeyUsage(validation.Params{
			"allowed_usage": []string{"telepathy"},
		})
		require.Error(t, err)
	})
}

func TestExtKeyUsage(t *testing.T) {
	serverAuth := asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}
	clientAuth := asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}

	t.Run("allowed by short name", func(t *testing.T) {
		v := build(t, validators.NewExtKeyUsage, validation.Params{
			"allowed_usage": []string{"serverAuth"},
		})
		req := parseCSR(t, "web01.example.com", pki.WithExtKeyUsageOIDs(serverAuth))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("allowed by oid resolves to short name", func(t *testing.T) {
		v := build(t, validators.NewExtKeyUsage, validation.Params{
			"allowed_usage": []string{"1.3.6.1.5.5.7.3.1"},
		})
		req := parseCSR(t, "web01.example.com", pki.WithExtKeyUsageOIDs(serverAuth))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("prohibited usage fails", func(t *testing.T) {
		v := build(t, validators.NewExtKeyUsage, validation.Params{
			"allowed_usage": []string{"serverAuth"},
		})
		req := parseCSR(t, "web01.example.com",
			pki.WithExtKeyUsageOIDs(serverAuth, clientAuth))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonExtKeyUsageDenied, outcome.ReasonCode)
		assert.Contains(t, outcome.Reason, "clientAuth")
	})

	t.Run("unknown custom oid allowed verbatim", func(t *testing.T) {
		v := build(t, validators.NewExtKeyUsage, validation.Params{
			"allowed_usage": []string{"1.2.3.4"},
		})
		req := parseCSR(t, "web01.example.com",
			pki.WithExtKeyUsageOIDs(asn1.ObjectIdentifier{1, 2, 3, 4}))

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("garbage usage entry is a load-time error", func(t *testing.T) {
		_, err := validators.NewExtKeyUsage(validation.Params{
			"allowed_usage": []string{"not-a-usage"},
		})
		require.Error(t, err)
	})
}
