package validators

import (
	"context"

	"certgate/internal/validation"
)

// signature ensures the request carries a valid self-signature, proving the
// requester holds the private key. Later validators may rely on this.
type signature struct{}

func NewSignature(validation.Params) (validation.Validator, error) {
	return signature{}, nil
}

func (signature) Name() string { return "csr_signature" }

func (s signature) Check(_ context.Context, in validation.Input) validation.Outcome {
	if err := in.Request.CheckSignature(); err != nil {
		return validation.Fail(s.Name(), ReasonBadSignature,
			"signature on the CSR is not valid")
	}
	return validation.Pass(s.Name())
}
