package validators

import (
	"context"
	"fmt"

	"certgate/internal/csr"
	"certgate/internal/validation"
)

// extensions ensures only accepted requested extensions are used. The
// allow-list accepts extension names (subjectAltName) or dotted OIDs.
type extensions struct {
	allowed map[string]bool
}

func NewExtensions(params validation.Params) (validation.Validator, error) {
	entries, err := params.StringSlice("allowed_extensions")
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(entries))
	for _, e := range entries {
		allowed[e] = true
	}
	return &extensions{allowed: allowed}, nil
}

func (v *extensions) Name() string { return "extensions" }

func (v *extensions) Check(_ context.Context, in validation.Input) validation.Outcome {
	for _, oid := range in.Request.RequestedExtensionOIDs() {
		if v.allowed[oid] {
			continue
		}
		name := csr.ExtensionNames[oid]
		if name != "" && v.allowed[name] {
			continue
		}
		if name == "" {
			name = oid
		}
		return validation.Fail(v.Name(), ReasonExtensionDenied,
			fmt.Sprintf("extension %q not allowed", name))
	}
	return validation.Pass(v.Name())
}
