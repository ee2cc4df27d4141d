package policy

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"certgate/internal/validation"
)

// Definitions is the raw, unresolved policy set as authored.
type Definitions struct {
	Policies map[string]PolicyDef `yaml:"policies"`
}

// PolicyDef is one named policy as it appears in the policy file.
type PolicyDef struct {
	Description string     `yaml:"description"`
	Signing     SigningDef `yaml:"signing"`
	Steps       []StepDef  `yaml:"steps"`
}

// SigningDef configures the signing profile.
type SigningDef struct {
	Backend string   `yaml:"backend"`
	TTL     Duration `yaml:"ttl"`
}

// Duration parses Go duration strings ("720h") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// StepDef is one validator invocation in a chain. Severity defaults to
// mandatory; advisory steps are recorded but never force rejection on their
// own.
type StepDef struct {
	Validator string            `yaml:"validator"`
	Severity  string            `yaml:"severity"`
	AlwaysRun bool              `yaml:"always_run"`
	Params    validation.Params `yaml:"params"`
}

// Source supplies policy definitions; Reload re-reads from it.
type Source interface {
	Load() (Definitions, error)
}

// FileSource reads definitions from a YAML policy file.
type FileSource string

func (f FileSource) Load() (Definitions, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return Definitions{}, fmt.Errorf("read policy file: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return Definitions{}, fmt.Errorf("parse policy file: %w", err)
	}
	return defs, nil
}

// StaticSource serves fixed definitions, mainly for tests.
type StaticSource Definitions

func (s StaticSource) Load() (Definitions, error) {
	return Definitions(s), nil
}
