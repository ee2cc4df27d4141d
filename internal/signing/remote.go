package signing

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

const defaultRemoteTimeout = 5 * time.Second

// Remote delegates signing to an external authority over HTTP and maps its
// responses into the Backend contract. The wait is bounded: a timeout is a
// retryable SigningError, never an indefinite hang.
type Remote struct {
	endpoint string
	issuer   string
	client   *http.Client
	timeout  time.Duration
}

type RemoteOption func(*Remote)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *Remote) {
		if client != nil {
			r.client = client
		}
	}
}

// WithTimeout bounds each delegated signing call.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewRemote(endpoint, issuer string, opts ...RemoteOption) (*Remote, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("remote endpoint is required")
	}
	r := &Remote{
		endpoint: endpoint,
		issuer:   issuer,
		client:   http.DefaultClient,
		timeout:  defaultRemoteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Issuer identifies the delegated authority.
func (r *Remote) Issuer() string { return r.issuer }

type remoteSignRequest struct {
	CSRPEM     string `json:"csr_pem"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

type remoteSignResponse struct {
	CertificatePEM string `json:"certificate_pem"`
}

func (r *Remote) Sign(ctx context.Context, req Request) (*IssuedCertificate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(remoteSignRequest{
		CSRPEM:     string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: req.CSR.Raw()})),
		TTLSeconds: int64(req.TTL.Seconds()),
	})
	if err != nil {
		return nil, newSigningError("could not encode delegated request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, newSigningError("could not build delegated request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, newSigningError("delegated signer timed out", true, err)
		}
		return nil, newSigningError("delegated signer unreachable", true, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		return nil, newSigningError(
			fmt.Sprintf("delegated signer answered %d", resp.StatusCode), true, nil)
	default:
		return nil, newSigningError(
			fmt.Sprintf("delegated signer refused the request (%d)", resp.StatusCode), false, nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newSigningError("could not read delegated response", true, err)
	}
	var parsed remoteSignResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, newSigningError("malformed delegated response", false, err)
	}

	return r.toIssued(req, []byte(parsed.CertificatePEM))
}

// toIssued validates the delegate's certificate and fills in the issuance
// metadata from the certificate itself, so the record always reflects what
// was actually signed.
func (r *Remote) toIssued(req Request, certPEM []byte) (*IssuedCertificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != certBlockType {
		return nil, newSigningError("delegated response is not a certificate", false, nil)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, newSigningError("delegated certificate does not parse", false, err)
	}

	issuer := r.issuer
	if issuer == "" {
		issuer = cert.Issuer.String()
	}

	return &IssuedCertificate{
		DER:         cert.Raw,
		PEM:         pem.EncodeToMemory(&pem.Block{Type: certBlockType, Bytes: cert.Raw}),
		Serial:      new(big.Int).Set(cert.SerialNumber),
		Issuer:      issuer,
		Fingerprint: req.CSR.Fingerprint(),
		IssuedAt:    cert.NotBefore,
		ExpiresAt:   cert.NotAfter,
	}, nil
}
