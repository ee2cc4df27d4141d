package validators_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgate/internal/validation"
	"certgate/internal/validation/validators"
	"certgate/pkg/testutil/pki"
)

func TestKeyStrength(t *testing.T) {
	t.Run("default minimum admits 2048-bit rsa", func(t *testing.T) {
		v := build(t, validators.NewKeyStrength, validation.Params{})
		req := parseCSR(t, "web01.example.com")

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("weak key fails", func(t *testing.T) {
		v := build(t, validators.NewKeyStrength, validation.Params{})
		pemCSR, _ := pki.GenerateCSR(t, "web01.example.com", 1024)
		req := mustParse(t, pemCSR)

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonKeyTooWeak, outcome.ReasonCode)
	})

	t.Run("raised minimum rejects 2048-bit rsa", func(t *testing.T) {
		v := build(t, validators.NewKeyStrength, validation.Params{
			"min_rsa_bits": 4096,
		})
		req := parseCSR(t, "web01.example.com")

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonKeyTooWeak, outcome.ReasonCode)
	})

	t.Run("algorithm not on the allow-list fails", func(t *testing.T) {
		v := build(t, validators.NewKeyStrength, validation.Params{
			"allowed_algorithms": []string{"ecdsa"},
		})
		req := parseCSR(t, "web01.example.com")

		outcome := v.Check(context.Background(), inputFor(req))
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonKeyAlgoNotAllowed, outcome.ReasonCode)
	})

	t.Run("unknown algorithm name is a load-time error", func(t *testing.T) {
		_, err := validators.NewKeyStrength(validation.Params{
			"allowed_algorithms": []string{"dsa"},
		})
		require.Error(t, err)
	})
}
