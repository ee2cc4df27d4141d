package policy

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"certgate/internal/validation"
	dErrors "certgate/pkg/domain-errors"
)

// ErrNotFound is returned by Resolve for unknown policy names.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "unknown policy")

type snapshot struct {
	policies map[string]*Policy
}

// Registry holds the active policy set. Resolution is lock-free against an
// immutable snapshot; Reload is the only writer and installs a new snapshot
// atomically, so readers never observe a partially-updated chain.
type Registry struct {
	source     Source
	validators *validation.Registry
	logger     *slog.Logger
	defaultTTL time.Duration
	active     atomic.Pointer[snapshot]
}

type RegistryOption func(*Registry)

func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithDefaultTTL sets the certificate lifetime used by policies that do not
// declare one.
func WithDefaultTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.defaultTTL = ttl
		}
	}
}

const defaultCertTTL = 24 * time.Hour

// DefaultBackend is the signing backend used when a policy does not name
// one.
const DefaultBackend = "local"

// NewRegistry loads the initial policy set from source. A load failure here
// is a configuration bug and surfaces immediately, never at request time.
func NewRegistry(source Source, validators *validation.Registry, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		source:     source,
		validators: validators,
		logger:     slog.Default(),
		defaultTTL: defaultCertTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the named policy from the active snapshot.
func (r *Registry) Resolve(name string) (*Policy, error) {
	snap := r.active.Load()
	p, ok := snap.policies[name]
	if !ok {
		return nil, fmt.Errorf("resolve policy %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Names lists the active policy names.
func (r *Registry) Names() []string {
	snap := r.active.Load()
	names := make([]string, 0, len(snap.policies))
	for name := range snap.policies {
		names = append(names, name)
	}
	return names
}

// Reload re-reads the source and swaps the active snapshot. On any error
// the previous snapshot stays in place; evaluations already running keep
// the snapshot they resolved against either way.
func (r *Registry) Reload() error {
	defs, err := r.source.Load()
	if err != nil {
		return err
	}

	built, err := r.build(defs)
	if err != nil {
		return err
	}

	r.active.Store(&snapshot{policies: built})
	r.logger.Info("policy set loaded", "policies", len(built))
	return nil
}

// build resolves every definition into an executable chain. Unknown
// validator identifiers and bad parameters are caught here, at load time.
func (r *Registry) build(defs Definitions) (map[string]*Policy, error) {
	if len(defs.Policies) == 0 {
		return nil, fmt.Errorf("invalid policy set: no policies defined")
	}

	built := make(map[string]*Policy, len(defs.Policies))
	for name, def := range defs.Policies {
		p, err := r.buildPolicy(name, def)
		if err != nil {
			return nil, fmt.Errorf("invalid policy %q: %w", name, err)
		}
		built[name] = p
	}
	return built, nil
}

func (r *Registry) buildPolicy(name string, def PolicyDef) (*Policy, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("validator chain is empty")
	}

	chain := make([]validation.Step, 0, len(def.Steps))
	for i, stepDef := range def.Steps {
		severity, err := parseSeverity(stepDef.Severity)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		v, err := r.validators.Build(stepDef.Validator, stepDef.Params)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		chain = append(chain, validation.Step{
			Validator: v,
			Severity:  severity,
			AlwaysRun: stepDef.AlwaysRun,
		})
	}

	profile := Profile{
		Backend: def.Signing.Backend,
		TTL:     time.Duration(def.Signing.TTL),
	}
	if profile.Backend == "" {
		profile.Backend = DefaultBackend
	}
	if profile.TTL <= 0 {
		profile.TTL = r.defaultTTL
	}

	return &Policy{
		Name:        name,
		Description: def.Description,
		Profile:     profile,
		Chain:       chain,
	}, nil
}

func parseSeverity(raw string) (validation.Severity, error) {
	switch raw {
	case "", string(validation.SeverityMandatory):
		return validation.SeverityMandatory, nil
	case string(validation.SeverityAdvisory):
		return validation.SeverityAdvisory, nil
	default:
		return "", fmt.Errorf("unknown severity %q", raw)
	}
}
