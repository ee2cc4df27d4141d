package issuance_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"certgate/internal/audit"
	auditmem "certgate/internal/audit/store/memory"
	"certgate/internal/certstore"
	"certgate/internal/issuance"
	"certgate/internal/issuance/mocks"
	"certgate/internal/policy"
	"certgate/internal/signing"
	"certgate/internal/validation"
	dErrors "certgate/pkg/domain-errors"
	"certgate/pkg/testutil/pki"
)

// staticValidator passes or fails unconditionally, for pipeline wiring in
// tests.
type staticValidator struct {
	name string
	pass bool
}

func (v staticValidator) Name() string { return v.name }

func (v staticValidator) Check(context.Context, validation.Input) validation.Outcome {
	if v.pass {
		return validation.Pass(v.name)
	}
	return validation.Fail(v.name, "STATIC_FAIL", "check configured to fail")
}

func testRegistry(t *testing.T) *validation.Registry {
	t.Helper()
	reg := validation.NewRegistry()
	reg.Register("always_pass", func(validation.Params) (validation.Validator, error) {
		return staticValidator{name: "always_pass", pass: true}, nil
	})
	reg.Register("always_fail", func(validation.Params) (validation.Validator, error) {
		return staticValidator{name: "always_fail", pass: false}, nil
	})
	return reg
}

func testPolicies(t *testing.T, steps ...policy.StepDef) *policy.Registry {
	t.Helper()
	source := policy.StaticSource{
		Policies: map[string]policy.PolicyDef{
			"web-server": {
				Description: "test policy",
				Signing:     policy.SigningDef{Backend: "local", TTL: policy.Duration(time.Hour)},
				Steps:       steps,
			},
		},
	}
	registry, err := policy.NewRegistry(source, testRegistry(t))
	require.NoError(t, err)
	return registry
}

type orchestratorEnv struct {
	orch    *issuance.Orchestrator
	store   certstore.Store
	backend *mocks.MockBackend
	events  *auditmem.Store
}

func newEnv(t *testing.T, ctrl *gomock.Controller, steps ...policy.StepDef) *orchestratorEnv {
	t.Helper()
	backend := mocks.NewMockBackend(ctrl)
	store := certstore.NewMemory()
	events := auditmem.New()

	orch := issuance.NewOrchestrator(
		testPolicies(t, steps...),
		validation.NewPipeline(),
		map[string]signing.Backend{"local": backend},
		store,
		audit.NewPublisher(events),
	)
	return &orchestratorEnv{orch: orch, store: store, backend: backend, events: events}
}

func issuedFor(fingerprint string, serial int64) *signing.IssuedCertificate {
	now := time.Now()
	return &signing.IssuedCertificate{
		DER:         []byte{0x30},
		PEM:         []byte("-----BEGIN CERTIFICATE-----\nstub\n-----END CERTIFICATE-----\n"),
		Serial:      big.NewInt(serial),
		Issuer:      "CN=Test CA",
		Fingerprint: fingerprint,
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}
}

func TestIssueHappyPath(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	env.backend.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req signing.Request) (*signing.IssuedCertificate, error) {
			assert.Equal(t, time.Hour, req.TTL)
			return issuedFor(req.CSR.Fingerprint(), 1001), nil
		})

	result, err := env.orch.Issue(context.Background(), issuance.Submission{
		CSRPEM: csrPEM,
		Policy: "web-server",
	})
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.True(t, result.Verdict.Accepted)
	assert.Equal(t, "1001", result.Record.Serial)
	assert.Equal(t, "web-server", result.Record.Policy)

	// Certificate landed in the store.
	stored, err := env.store.BySerial(context.Background(), "1001")
	require.NoError(t, err)
	assert.Equal(t, result.Record.Fingerprint, stored.Fingerprint)

	// One validator event plus the issuance summary.
	events := env.events.All()
	require.Len(t, events, 2)
	assert.Equal(t, audit.StageValidator, events[0].Stage)
	assert.Equal(t, "always_pass", events[0].Validator)
	assert.Equal(t, audit.StageIssuance, events[1].Stage)
	assert.Equal(t, audit.DecisionIssued, events[1].Decision)
	assert.Equal(t, "1001", events[1].Serial)
}

func TestIssueRejectedNeverSigns(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl,
		policy.StepDef{Validator: "always_fail"},
		policy.StepDef{Validator: "always_pass"},
	)
	// No EXPECT on the backend: any Sign call fails the test.

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	_, err := env.orch.Issue(context.Background(), issuance.Submission{
		CSRPEM: csrPEM,
		Policy: "web-server",
	})
	require.Error(t, err)

	var rejection *issuance.RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.False(t, rejection.Verdict.Accepted)
	require.Len(t, rejection.Verdict.Failures(), 1)
	assert.Equal(t, "STATIC_FAIL", rejection.Verdict.Failures()[0].ReasonCode)
	assert.Equal(t, dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	// Summary audit event records the rejection.
	events := env.events.All()
	last := events[len(events)-1]
	assert.Equal(t, audit.DecisionRejected, last.Decision)
	assert.Equal(t, "STATIC_FAIL", last.ReasonCode)
}

func TestIssueMalformedCSR(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	raw := []byte("not a csr")
	_, err := env.orch.Issue(context.Background(), issuance.Submission{
		CSRPEM: raw,
		Policy: "web-server",
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))

	// the rejection still lands in the trail, keyed on the raw bytes
	sum := sha256.Sum256(raw)
	events := env.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, hex.EncodeToString(sum[:]), events[0].Fingerprint)
	assert.Equal(t, audit.DecisionRejected, events[0].Decision)
	assert.Equal(t, "REQUEST_MALFORMED", events[0].ReasonCode)
}

func TestIssueUnknownPolicy(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	_, err := env.orch.Issue(context.Background(), issuance.Submission{
		CSRPEM: csrPEM,
		Policy: "does-not-exist",
	})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeNotFound, dErrors.CodeOf(err))

	events := env.events.All()
	require.Len(t, events, 1)
	assert.Equal(t, "does-not-exist", events[0].Policy)
	assert.Equal(t, audit.DecisionRejected, events[0].Decision)
	assert.Equal(t, "POLICY_UNKNOWN", events[0].ReasonCode)
}

func TestIssueIdempotentRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	env.backend.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req signing.Request) (*signing.IssuedCertificate, error) {
			return issuedFor(req.CSR.Fingerprint(), 2002), nil
		}).Times(1)

	first, err := env.orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.NoError(t, err)

	// Same bytes again: served from the store, signer untouched.
	second, err := env.orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, first.Record.Serial, second.Record.Serial)
}

func TestIssueRevokedCertificateNotReused(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	env.backend.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req signing.Request) (*signing.IssuedCertificate, error) {
			return issuedFor(req.CSR.Fingerprint(), 3003), nil
		}).Times(2)

	first, err := env.orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.NoError(t, err)
	require.NoError(t, env.orch.Revoke(context.Background(), first.Record.Serial))

	// Persisting the same serial again would collide, so the second issue
	// fails at persist; the point is the signer was consulted again.
	_, err = env.orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.Error(t, err)
}

func TestIssueRetryableSigningFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	env.backend.EXPECT().Sign(gomock.Any(), gomock.Any()).Return(nil, &signing.SigningError{
		Reason:    "upstream timeout",
		Retryable: true,
	})

	_, err := env.orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeUnavailable, dErrors.CodeOf(err))

	events := env.events.All()
	last := events[len(events)-1]
	assert.Equal(t, audit.DecisionFailed, last.Decision)
	assert.Equal(t, "SIGNING_FAILED", last.ReasonCode)
}

func TestIssueDuplicateSerialNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)

	backend := mocks.NewMockBackend(ctrl)
	store := mocks.NewMockStore(ctrl)
	events := auditmem.New()

	orch := issuance.NewOrchestrator(
		testPolicies(t, policy.StepDef{Validator: "always_pass"}),
		validation.NewPipeline(),
		map[string]signing.Backend{"local": backend},
		store,
		audit.NewPublisher(events),
	)

	csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048)

	store.EXPECT().ByFingerprint(gomock.Any(), gomock.Any()).Return(certstore.Record{}, certstore.ErrNotFound)
	backend.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req signing.Request) (*signing.IssuedCertificate, error) {
			return issuedFor(req.CSR.Fingerprint(), 4004), nil
		})
	// A duplicate serial is permanent: exactly one persist attempt.
	store.EXPECT().Persist(gomock.Any(), gomock.Any()).Return(certstore.ErrDuplicateSerial).Times(1)

	_, err := orch.Issue(context.Background(), issuance.Submission{CSRPEM: csrPEM, Policy: "web-server"})
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(err))
}

func TestConcurrentIssueUniqueSerials(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	var next int64 = 5000
	var mu sync.Mutex
	env.backend.EXPECT().Sign(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req signing.Request) (*signing.IssuedCertificate, error) {
			mu.Lock()
			next++
			serial := next
			mu.Unlock()
			return issuedFor(req.CSR.Fingerprint(), serial), nil
		}).AnyTimes()

	const workers = 8
	var wg sync.WaitGroup
	serials := make(chan string, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			csrPEM, _ := pki.GenerateCSR(t, "app.example.com", 2048,
				pki.WithDNSNames("host"+string(rune('a'+n))+".example.com"))
			result, err := env.orch.Issue(context.Background(), issuance.Submission{
				CSRPEM: csrPEM,
				Policy: "web-server",
			})
			if err != nil {
				t.Errorf("issue: %v", err)
				return
			}
			serials <- result.Record.Serial
		}(i)
	}
	wg.Wait()
	close(serials)

	seen := make(map[string]bool)
	for serial := range serials {
		assert.False(t, seen[serial], "serial issued twice")
		seen[serial] = true
	}
	assert.Len(t, seen, workers)
}

func TestLookupConsultsStatusCache(t *testing.T) {
	ctrl := gomock.NewController(t)

	cache := mocks.NewMockStatusCache(ctrl)
	store := certstore.NewMemory()
	now := time.Now()

	orch := issuance.NewOrchestrator(
		testPolicies(t, policy.StepDef{Validator: "always_pass"}),
		validation.NewPipeline(),
		nil,
		store,
		audit.NewPublisher(auditmem.New()),
		issuance.WithStatusCache(cache),
	)

	require.NoError(t, store.Persist(context.Background(), certstore.Record{
		Serial:      "6006",
		Fingerprint: "fp-cache",
		PEM:         []byte("pem"),
		Issuer:      "CN=Test CA",
		Policy:      "web-server",
		IssuedAt:    now,
		ExpiresAt:   now.Add(time.Hour),
	}))

	// Another replica revoked it: the cache knows before the store does.
	cache.EXPECT().IsRevoked(gomock.Any(), "6006").Return(true, nil)

	_, status, err := orch.Lookup(context.Background(), "6006")
	require.NoError(t, err)
	assert.Equal(t, certstore.StatusRevoked, status)
}

func TestRevokeUnknownSerial(t *testing.T) {
	ctrl := gomock.NewController(t)
	env := newEnv(t, ctrl, policy.StepDef{Validator: "always_pass"})

	err := env.orch.Revoke(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, certstore.ErrNotFound))
}
