package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"certgate/internal/validation/metrics"
)

// ReasonInternal is the generic code reported when a validator faults. The
// detailed reason stays in logs and the audit trail.
const ReasonInternal = "VALIDATOR_INTERNAL_ERROR"

// Step is one resolved entry of a policy's validator chain.
type Step struct {
	Validator Validator
	Severity  Severity
	// AlwaysRun steps execute even after a mandatory failure so the audit
	// trail is complete.
	AlwaysRun bool
}

// Pipeline runs a policy's ordered validator chain over a request. It is
// stateless and safe for concurrent use.
type Pipeline struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	// timeout bounds each individual validator, so a stuck collaborator
	// cannot wedge the whole request.
	timeout time.Duration
}

type PipelineOption func(*Pipeline)

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithValidatorTimeout bounds each validator invocation.
func WithValidatorTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

const defaultValidatorTimeout = 10 * time.Second

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		logger:  slog.Default(),
		timeout: defaultValidatorTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the chain in declared order. Later validators may rely on
// properties asserted by earlier ones, so the order is never reshuffled.
//
// A mandatory failure or error short-circuits the remaining mandatory steps;
// advisory and always-run steps still execute for complete audit context.
// The verdict accepts only when no mandatory step failed and no step errored.
func (p *Pipeline) Evaluate(ctx context.Context, in Input, chain []Step) Verdict {
	start := time.Now()

	var (
		outcomes        = make([]Outcome, 0, len(chain))
		mandatoryFailed bool
		errored         bool
	)

	for _, step := range chain {
		if mandatoryFailed && step.Severity == SeverityMandatory && !step.AlwaysRun {
			continue
		}

		outcome := p.run(ctx, step, in)
		outcome.Severity = step.Severity
		outcomes = append(outcomes, outcome)

		switch outcome.Status {
		case StatusError:
			errored = true
			if step.Severity == SeverityMandatory {
				mandatoryFailed = true
			}
			p.logger.ErrorContext(ctx, "validator faulted",
				"validator", outcome.Validator,
				"reason", outcome.Reason,
			)
		case StatusFail:
			if step.Severity == SeverityMandatory {
				mandatoryFailed = true
			}
		}

		if p.metrics != nil {
			p.metrics.ObserveOutcome(outcome.Validator, string(outcome.Status))
		}
	}

	verdict := Verdict{
		Accepted: !mandatoryFailed && !errored,
		Outcomes: outcomes,
	}

	if p.metrics != nil {
		p.metrics.ObserveEvaluation(verdict.Accepted, time.Since(start))
	}
	return verdict
}

// run invokes one validator with a bounded context, converting panics into
// fail-safe error outcomes.
func (p *Pipeline) run(ctx context.Context, step Step, in Input) (outcome Outcome) {
	name := step.Validator.Name()

	defer func() {
		if r := recover(); r != nil {
			outcome = Errorf(name, ReasonInternal, fmt.Sprintf("validator panicked: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return step.Validator.Check(ctx, in)
}
