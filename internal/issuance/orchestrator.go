// Package issuance orchestrates the full certificate request lifecycle:
// parse, validate against a named policy, sign, persist, and audit. It is
// the only package that coordinates across the domain collaborators.
package issuance

//go:generate mockgen -destination=mocks/mocks.go -package=mocks certgate/internal/issuance Backend,Store,StatusCache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"certgate/internal/audit"
	"certgate/internal/certstore"
	"certgate/internal/csr"
	"certgate/internal/issuance/metrics"
	"certgate/internal/policy"
	"certgate/internal/signing"
	"certgate/internal/validation"
	dErrors "certgate/pkg/domain-errors"
	"certgate/pkg/requestcontext"
)

// Submission is one inbound certificate request.
type Submission struct {
	// CSRPEM is the PEM or DER encoded certificate signing request.
	CSRPEM []byte
	// Policy names the policy the request is evaluated against.
	Policy string
}

// Result is a successful issuance.
type Result struct {
	Record  certstore.Record
	Verdict validation.Verdict
	// Reused is true when the same request was already issued and the
	// stored certificate is returned instead of signing again.
	Reused bool
}

// RejectionError carries the verdict of a policy rejection so callers can
// surface the individual failures.
type RejectionError struct {
	Verdict validation.Verdict
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("request rejected by policy: %d failing check(s)", len(e.Verdict.Failures()))
}

func (e *RejectionError) Unwrap() error {
	return dErrors.New(dErrors.CodeInvalidInput, "certificate request rejected by policy")
}

// Orchestrator drives a submission through validation, signing, and
// persistence. All collaborators are injected; the orchestrator holds no
// state of its own beyond configuration.
type Orchestrator struct {
	policies *policy.Registry
	pipeline *validation.Pipeline
	backends map[string]signing.Backend
	store    certstore.Store
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	clock    func() time.Time

	statusCache     StatusCache
	persistAttempts uint
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithPersistAttempts bounds the retry loop around certificate
// persistence.
func WithPersistAttempts(n uint) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.persistAttempts = n
		}
	}
}

func NewOrchestrator(
	policies *policy.Registry,
	pipeline *validation.Pipeline,
	backends map[string]signing.Backend,
	store certstore.Store,
	auditor *audit.Publisher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		policies:        policies,
		pipeline:        pipeline,
		backends:        backends,
		store:           store,
		audit:           auditor,
		logger:          slog.Default(),
		tracer:          otel.Tracer("certgate/issuance"),
		clock:           time.Now,
		persistAttempts: 3,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Issue runs one submission end to end. On policy rejection it returns a
// *RejectionError; signing and persistence failures come back as coded
// errors. Every terminal leaves an issuance-stage audit event.
func (o *Orchestrator) Issue(ctx context.Context, sub Submission) (*Result, error) {
	ctx, span := o.tracer.Start(ctx, "issuance.issue",
		trace.WithAttributes(attribute.String("policy", sub.Policy)))
	defer span.End()

	start := o.clock()

	request, err := csr.Parse(sub.CSRPEM)
	if err != nil {
		// no parsed fingerprint exists yet, so the trail keys on the raw
		// submitted bytes
		sum := sha256.Sum256(sub.CSRPEM)
		o.emit(ctx, audit.Event{
			Fingerprint: hex.EncodeToString(sum[:]),
			Policy:      sub.Policy,
			Stage:       audit.StageIssuance,
			Decision:    audit.DecisionRejected,
			ReasonCode:  "REQUEST_MALFORMED",
		})
		o.observe("malformed", sub.Policy, start)
		return nil, dErrors.Wrap(dErrors.CodeBadRequest, "parse certificate request", err)
	}
	span.SetAttributes(attribute.String("fingerprint", request.Fingerprint()))

	pol, err := o.policies.Resolve(sub.Policy)
	if err != nil {
		o.auditSummary(ctx, request, sub.Policy, audit.DecisionRejected, "POLICY_UNKNOWN", "")
		o.observe("unknown_policy", sub.Policy, start)
		return nil, err
	}

	// A retried submission of the byte-identical request gets the stored
	// certificate back without consulting the signer again.
	if existing, err := o.store.ByFingerprint(ctx, request.Fingerprint()); err == nil {
		if existing.Policy == pol.Name && existing.StatusAt(o.clock()) == certstore.StatusValid {
			if o.metrics != nil {
				o.metrics.ObserveIdempotentHit()
			}
			o.observe("reused", pol.Name, start)
			return &Result{Record: existing, Reused: true}, nil
		}
	} else if !errors.Is(err, certstore.ErrNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	verdict := o.pipeline.Evaluate(ctx, validation.Input{
		Request:    request,
		Caller:     requestcontext.CallerFrom(ctx),
		ClientAddr: requestcontext.ClientIP(ctx),
	}, pol.Chain)

	o.auditOutcomes(ctx, request, pol.Name, verdict)

	if !verdict.Accepted {
		if verdict.HasInternalError() {
			o.auditSummary(ctx, request, pol.Name, audit.DecisionFailed, "VALIDATOR_INTERNAL_ERROR", "")
			o.observe("failed", pol.Name, start)
			return nil, dErrors.New(dErrors.CodeUnavailable, "validation could not be completed")
		}
		o.auditSummary(ctx, request, pol.Name, audit.DecisionRejected, rejectionCode(verdict), "")
		o.observe("rejected", pol.Name, start)
		return nil, &RejectionError{Verdict: verdict}
	}

	backend, ok := o.backends[pol.Profile.Backend]
	if !ok {
		o.auditSummary(ctx, request, pol.Name, audit.DecisionFailed, "BACKEND_UNKNOWN", "")
		o.observe("failed", pol.Name, start)
		return nil, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("signing backend %q not configured", pol.Profile.Backend))
	}

	cert, err := backend.Sign(ctx, signing.Request{CSR: request, TTL: pol.Profile.TTL})
	if err != nil {
		o.auditSummary(ctx, request, pol.Name, audit.DecisionFailed, "SIGNING_FAILED", "")
		o.observe("failed", pol.Name, start)
		o.logger.Error("signing failed",
			"policy", pol.Name,
			"backend", pol.Profile.Backend,
			"fingerprint", request.Fingerprint(),
			"retryable", signing.IsRetryable(err),
			"error", err,
		)
		if signing.IsRetryable(err) {
			return nil, dErrors.Wrap(dErrors.CodeUnavailable, "signing backend unavailable", err)
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "signing failed", err)
	}

	record := certstore.NewRecord(cert, pol.Name)
	if err := o.persist(ctx, record); err != nil {
		// the signed serial stays visible in the trail even though the
		// record never landed
		o.auditSummary(ctx, request, pol.Name, audit.DecisionFailed, "PERSIST_FAILED", record.Serial)
		o.observe("failed", pol.Name, start)
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist certificate", err)
	}

	o.auditSummary(ctx, request, pol.Name, audit.DecisionIssued, "", record.Serial)
	o.observe("issued", pol.Name, start)
	o.logger.Info("certificate issued",
		"policy", pol.Name,
		"serial", record.Serial,
		"fingerprint", record.Fingerprint,
		"expires_at", record.ExpiresAt,
	)

	return &Result{Record: record, Verdict: verdict}, nil
}

// persist writes the record with bounded exponential backoff. Duplicate
// serials are a hard invariant violation and never retried.
func (o *Orchestrator) persist(ctx context.Context, record certstore.Record) error {
	attempt := 0
	operation := func() (struct{}, error) {
		if attempt > 0 && o.metrics != nil {
			o.metrics.ObservePersistRetry()
		}
		attempt++
		err := o.store.Persist(ctx, record)
		if errors.Is(err, certstore.ErrDuplicateSerial) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(o.persistAttempts),
	)
	return err
}

func (o *Orchestrator) auditOutcomes(ctx context.Context, request *csr.Request, policyName string, verdict validation.Verdict) {
	for _, outcome := range verdict.Outcomes {
		o.emit(ctx, audit.Event{
			Fingerprint: request.Fingerprint(),
			Policy:      policyName,
			Stage:       audit.StageValidator,
			Validator:   outcome.Validator,
			Decision:    string(outcome.Status),
			ReasonCode:  outcome.ReasonCode,
			Reason:      outcome.Reason,
		})
	}
}

func (o *Orchestrator) auditSummary(ctx context.Context, request *csr.Request, policyName, decision, reasonCode, serial string) {
	o.emit(ctx, audit.Event{
		Fingerprint: request.Fingerprint(),
		Policy:      policyName,
		Stage:       audit.StageIssuance,
		Decision:    decision,
		ReasonCode:  reasonCode,
		Serial:      serial,
	})
}

func (o *Orchestrator) emit(ctx context.Context, event audit.Event) {
	event.Actor = requestcontext.CallerFrom(ctx).Subject
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	if err := o.audit.Emit(ctx, event); err != nil {
		o.logger.Error("audit emit failed",
			"fingerprint", event.Fingerprint,
			"stage", event.Stage,
			"error", err,
		)
	}
}

func (o *Orchestrator) observe(decision, policyName string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveRequest(decision, policyName, o.clock().Sub(start))
	}
}

// rejectionCode picks the first mandatory failure's code as the summary
// reason, falling back to the first failure of any severity.
func rejectionCode(verdict validation.Verdict) string {
	failures := verdict.Failures()
	for _, f := range failures {
		if f.Severity == validation.SeverityMandatory {
			return f.ReasonCode
		}
	}
	if len(failures) > 0 {
		return failures[0].ReasonCode
	}
	return ""
}
