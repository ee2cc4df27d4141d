package validators

import (
	"context"
	"fmt"

	"certgate/internal/csr"
	"certgate/internal/validation"
)

// keyStrength enforces a minimum key size and an algorithm allow-list.
type keyStrength struct {
	minBits      map[csr.KeyAlgorithm]int
	allowedAlgos map[csr.KeyAlgorithm]bool
}

// Defaults applied when a policy does not override them.
const (
	defaultMinRSABits   = 2048
	defaultMinECDSABits = 256
)

func NewKeyStrength(params validation.Params) (validation.Validator, error) {
	v := &keyStrength{
		minBits: map[csr.KeyAlgorithm]int{
			csr.KeyRSA:   defaultMinRSABits,
			csr.KeyECDSA: defaultMinECDSABits,
		},
		allowedAlgos: map[csr.KeyAlgorithm]bool{},
	}

	algos, err := params.StringSlice("allowed_algorithms")
	if err != nil {
		return nil, err
	}
	if len(algos) == 0 {
		algos = []string{"rsa", "ecdsa", "ed25519"}
	}
	for _, raw := range algos {
		switch csr.KeyAlgorithm(raw) {
		case csr.KeyRSA, csr.KeyECDSA, csr.KeyEd25519:
			v.allowedAlgos[csr.KeyAlgorithm(raw)] = true
		default:
			return nil, fmt.Errorf("unknown key algorithm %q", raw)
		}
	}

	if minRSA, ok, err := params.Int("min_rsa_bits"); err != nil {
		return nil, err
	} else if ok {
		v.minBits[csr.KeyRSA] = minRSA
	}
	if minEC, ok, err := params.Int("min_ecdsa_bits"); err != nil {
		return nil, err
	} else if ok {
		v.minBits[csr.KeyECDSA] = minEC
	}

	return v, nil
}

func (v *keyStrength) Name() string { return "key_strength" }

func (v *keyStrength) Check(_ context.Context, in validation.Input) validation.Outcome {
	algo := in.Request.KeyAlgorithm()

	if algo == csr.KeyUnknown || !v.allowedAlgos[algo] {
		return validation.Fail(v.Name(), ReasonKeyAlgoNotAllowed,
			fmt.Sprintf("key algorithm %q is not allowed", algo))
	}

	if min, ok := v.minBits[algo]; ok {
		if bits := in.Request.KeyBits(); bits < min {
			return validation.Fail(v.Name(), ReasonKeyTooWeak,
				fmt.Sprintf("%s key of %d bits is below the required %d bits", algo, bits, min))
		}
	}
	return validation.Pass(v.Name())
}
