package audit

import "time"

// Stage distinguishes per-validator events from request-level summaries.
type Stage string

const (
	StageValidator Stage = "validator"
	StageIssuance  Stage = "issuance"
)

// Issuance-level decisions. Validator-level events reuse the validator's
// outcome status.
const (
	DecisionIssued   = "issued"
	DecisionRejected = "rejected"
	DecisionFailed   = "failed"
	DecisionRevoked  = "revoked"
)

// Event is emitted from domain logic to capture one decision. Write-once,
// append-only; keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// Actor is the authenticated caller the decision concerns.
	Actor     string `json:"actor"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	// Fingerprint ties the event to the originating request.
	Fingerprint string `json:"fingerprint"`
	Policy      string `json:"policy,omitempty"`
	Stage       Stage  `json:"stage"`
	// Validator is set for validator-level events only.
	Validator  string `json:"validator,omitempty"`
	Decision   string `json:"decision"`
	ReasonCode string `json:"reason_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	// Serial is set on successful issuance events.
	Serial string `json:"serial,omitempty"`
}
