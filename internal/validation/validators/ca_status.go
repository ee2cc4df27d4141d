package validators

import (
	"context"
	"fmt"

	"certgate/internal/validation"
)

// caStatus ensures the request's CA flags match what the policy expects.
// When ca_requested is false, any basicConstraints CA flag or
// keyCertSign/cRLSign usage is refused; when true, at least one of them must
// be present.
type caStatus struct {
	caRequested bool
}

func NewCAStatus(params validation.Params) (validation.Validator, error) {
	requested, err := params.Bool("ca_requested")
	if err != nil {
		return nil, err
	}
	return &caStatus{caRequested: requested}, nil
}

func (v *caStatus) Name() string { return "ca_status" }

func (v *caStatus) Check(_ context.Context, in validation.Input) validation.Outcome {
	var requestFlags bool

	isCA, err := in.Request.RequestsCA()
	if err != nil {
		return validation.Fail(v.Name(), ReasonMalformedExtension, err.Error())
	}
	if isCA {
		if !v.caRequested {
			return validation.Fail(v.Name(), ReasonCAStatusMismatch,
				"CA status requested, but not allowed")
		}
		requestFlags = true
	}

	usages, err := in.Request.KeyUsages()
	if err != nil {
		return validation.Fail(v.Name(), ReasonMalformedExtension, err.Error())
	}
	var certSign, crlSign bool
	for _, u := range usages {
		switch u {
		case "keyCertSign":
			certSign = true
		case "cRLSign":
			crlSign = true
		}
	}
	if certSign || crlSign {
		if !v.caRequested {
			return validation.Fail(v.Name(), ReasonCAStatusMismatch,
				fmt.Sprintf("key usage doesn't match requested CA status (keyCertSign/cRLSign: %t/%t)",
					certSign, crlSign))
		}
		requestFlags = true
	}

	if v.caRequested && !requestFlags {
		return validation.Fail(v.Name(), ReasonCAStatusMismatch, "CA flags required")
	}
	return validation.Pass(v.Name())
}
