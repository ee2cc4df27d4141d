package validation

// Status classifies a single validator outcome.
type Status string

const (
	// StatusPass means the check succeeded.
	StatusPass Status = "pass"
	// StatusFail means the request violates policy. Expected and
	// user-correctable.
	StatusFail Status = "fail"
	// StatusError means the validator itself faulted. Treated fail-safe:
	// the request is rejected, never silently skipped.
	StatusError Status = "error"
)

// Severity classifies a policy step at authoring time.
type Severity string

const (
	// SeverityMandatory steps force rejection on failure.
	SeverityMandatory Severity = "mandatory"
	// SeverityAdvisory steps are recorded for audit but do not by
	// themselves force rejection.
	SeverityAdvisory Severity = "advisory"
)

// Outcome is the result of one validator against one request.
type Outcome struct {
	// Validator is the policy-registered name of the check.
	Validator string   `json:"validator"`
	Severity  Severity `json:"severity"`
	Status    Status   `json:"status"`
	// ReasonCode is a stable machine-readable code, e.g. KEY_TOO_WEAK.
	// Empty on pass.
	ReasonCode string `json:"reason_code,omitempty"`
	// Reason is the human-readable explanation. Internal-error detail is
	// only ever surfaced through the audit trail, not to callers.
	Reason string `json:"reason,omitempty"`
}

// Pass builds a passing outcome.
func Pass(validator string) Outcome {
	return Outcome{Validator: validator, Status: StatusPass}
}

// Fail builds a policy-failure outcome with a machine-readable code.
func Fail(validator, code, reason string) Outcome {
	return Outcome{Validator: validator, Status: StatusFail, ReasonCode: code, Reason: reason}
}

// Errorf builds an internal-error outcome.
func Errorf(validator, code, reason string) Outcome {
	return Outcome{Validator: validator, Status: StatusError, ReasonCode: code, Reason: reason}
}

// Verdict aggregates all outcomes for one request.
type Verdict struct {
	// Accepted is true only if every mandatory outcome passed and no
	// validator errored.
	Accepted bool      `json:"accepted"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failures returns the non-passing outcomes, in evaluation order.
func (v Verdict) Failures() []Outcome {
	var failed []Outcome
	for _, o := range v.Outcomes {
		if o.Status != StatusPass {
			failed = append(failed, o)
		}
	}
	return failed
}

// HasInternalError reports whether any validator faulted.
func (v Verdict) HasInternalError() bool {
	for _, o := range v.Outcomes {
		if o.Status == StatusError {
			return true
		}
	}
	return false
}
