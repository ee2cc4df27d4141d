package validators_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certgate/internal/directory"
	"certgate/internal/identity"
	"certgate/internal/validation"
	"certgate/internal/validation/validators"
)

// failingDirectory simulates a directory outage.
type failingDirectory struct{}

func (failingDirectory) Lookup(context.Context, string) (directory.Attributes, error) {
	return directory.Attributes{}, errors.New("connection refused")
}

func TestServerGroup(t *testing.T) {
	dir := directory.NewStatic(map[string]directory.Attributes{
		"alice": {Groups: []string{"infra-admins", "developers"}},
		"bob":   {Groups: []string{"developers"}},
	})
	params := validation.Params{
		"group_prefixes": map[string]string{"infra": "infra-admins"},
	}

	newValidator := func(t *testing.T, d directory.Directory) validation.Validator {
		t.Helper()
		v, err := validators.NewServerGroup(d, params)
		require.NoError(t, err)
		return v
	}

	check := func(v validation.Validator, cn, subject string) validation.Outcome {
		req := parseCSR(t, cn)
		return v.Check(context.Background(), validation.Input{
			Request: req,
			Caller:  identity.Caller{Subject: subject},
		})
	}

	t.Run("member of the prefix group passes", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "infra-web01.example.com", "alice")
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("non-member fails", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "infra-web01.example.com", "bob")
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonGroupMismatch, outcome.ReasonCode)
	})

	t.Run("unmapped prefix passes", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "lab-web01.example.com", "bob")
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("name without a prefix passes", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "web01.example.com", "bob")
		assert.Equal(t, validation.StatusPass, outcome.Status)
	})

	t.Run("unknown identity fails", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "infra-web01.example.com", "mallory")
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonGroupMismatch, outcome.ReasonCode)
	})

	t.Run("directory outage is an internal error", func(t *testing.T) {
		outcome := check(newValidator(t, failingDirectory{}), "infra-web01.example.com", "alice")
		assert.Equal(t, validation.StatusError, outcome.Status)
		assert.Equal(t, validators.ReasonDirectoryError, outcome.ReasonCode)
	})

	t.Run("request without cn fails", func(t *testing.T) {
		outcome := check(newValidator(t, dir), "", "alice")
		assert.Equal(t, validation.StatusFail, outcome.Status)
		assert.Equal(t, validators.ReasonCNRequired, outcome.ReasonCode)
	})

	t.Run("missing prefixes is a load-time error", func(t *testing.T) {
		_, err := validators.NewServerGroup(dir, validation.Params{})
		require.Error(t, err)
	})

	t.Run("nil directory is a load-time error", func(t *testing.T) {
		_, err := validators.NewServerGroup(nil, params)
		require.Error(t, err)
	})
}
