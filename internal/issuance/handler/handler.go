// Package handler exposes certificate issuance over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks Service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certgate/internal/audit"
	"certgate/internal/certstore"
	"certgate/internal/issuance"
	"certgate/internal/platform/middleware"
	"certgate/internal/validation"
	dErrors "certgate/pkg/domain-errors"
	"certgate/pkg/platform/httputil"
	"certgate/pkg/requestcontext"
)

// Service is the issuance surface the handler delegates to.
type Service interface {
	Issue(ctx context.Context, sub issuance.Submission) (*issuance.Result, error)
	Lookup(ctx context.Context, serial string) (certstore.Record, certstore.Status, error)
	Revoke(ctx context.Context, serial string) error
}

// AuthorityInfo describes the issuing authority for the CA endpoint.
type AuthorityInfo interface {
	Issuer() string
	Certificate() []byte
}

// AuditTrail reads back recorded events for a request.
type AuditTrail interface {
	ListByFingerprint(ctx context.Context, fingerprint string) ([]audit.Event, error)
}

// Handler handles certificate lifecycle endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	authority AuthorityInfo
	trail     AuditTrail
	validator middleware.CallerValidator
}

func New(
	service Service,
	authority AuthorityInfo,
	trail AuditTrail,
	validator middleware.CallerValidator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		authority: authority,
		trail:     trail,
		validator: validator,
	}
}

// Register mounts the certificate routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/v1/certificates", h.handleIssue)
		r.Get("/v1/certificates/{serial}", h.handleLookup)
		r.Post("/v1/certificates/{serial}/revoke", h.handleRevoke)
		r.Get("/v1/certificates/{serial}/audit", h.handleAuditTrail)
	})
	r.Get("/v1/ca", h.handleAuthority)
}

type issueRequest struct {
	CSR    string `json:"csr"`
	Policy string `json:"policy"`
}

type certificateResponse struct {
	Serial      string    `json:"serial"`
	Certificate string    `json:"certificate,omitempty"`
	Issuer      string    `json:"issuer"`
	Policy      string    `json:"policy"`
	Status      string    `json:"status"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Reused      bool      `json:"reused,omitempty"`
}

type rejectionResponse struct {
	Error            string               `json:"error"`
	ErrorDescription string               `json:"error_description"`
	Outcomes         []validation.Outcome `json:"outcomes"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[issueRequest](w, r, h.logger)
	if !ok {
		return
	}
	if req.CSR == "" || req.Policy == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "csr and policy are required"))
		return
	}

	result, err := h.service.Issue(ctx, issuance.Submission{
		CSRPEM: []byte(req.CSR),
		Policy: req.Policy,
	})
	if err != nil {
		var rejection *issuance.RejectionError
		if errors.As(err, &rejection) {
			httputil.WriteJSON(w, http.StatusForbidden, rejectionResponse{
				Error:            "rejected",
				ErrorDescription: "certificate request rejected by policy",
				Outcomes:         rejection.Verdict.Outcomes,
			})
			return
		}
		h.logger.ErrorContext(ctx, "issuance failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy", req.Policy,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toCertificateResponse(result.Record, certstore.StatusValid, result.Reused))
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	record, status, err := h.service.Lookup(r.Context(), serial)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(record, status, false))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serial := chi.URLParam(r, "serial")

	if err := h.service.Revoke(ctx, serial); err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeNotFound {
			h.logger.ErrorContext(ctx, "revocation failed",
				"request_id", requestcontext.RequestID(ctx),
				"serial", serial,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	serial := chi.URLParam(r, "serial")

	record, _, err := h.service.Lookup(ctx, serial)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.trail.ListByFingerprint(ctx, record.Fingerprint)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit trail lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"serial", serial,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "audit trail unavailable"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"serial": serial,
		"events": events,
	})
}

func (h *Handler) handleAuthority(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"issuer":      h.authority.Issuer(),
		"certificate": string(h.authority.Certificate()),
	})
}

func toCertificateResponse(record certstore.Record, status certstore.Status, reused bool) certificateResponse {
	return certificateResponse{
		Serial:      record.Serial,
		Certificate: string(record.PEM),
		Issuer:      record.Issuer,
		Policy:      record.Policy,
		Status:      string(status),
		IssuedAt:    record.IssuedAt,
		ExpiresAt:   record.ExpiresAt,
		Reused:      reused,
	}
}
