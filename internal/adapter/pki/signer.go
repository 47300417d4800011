package pki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/infrastructure/circuitbreaker"
	"github.com/gridfleet/gateway/internal/ports"
)

// HTTPSigner forwards certificate signing requests to an external CA
// backend. The gateway never holds signing keys itself.
type HTTPSigner struct {
	baseURL string
	token   string
	client  *circuitbreaker.HTTPClient
	log     *zap.Logger
}

func NewHTTPSigner(baseURL, token string, log *zap.Logger) ports.CertificateSigner {
	return &HTTPSigner{
		baseURL: baseURL,
		token:   token,
		client:  circuitbreaker.NewHTTPClient(circuitbreaker.DefaultSettings("pki-signer"), log),
		log:     log,
	}
}

type signRequest struct {
	CSR             string `json:"csr"`
	CertificateType string `json:"certificate_type"`
	ChargerID       string `json:"charger_id"`
}

type signResponse struct {
	CertificateChain string `json:"certificate_chain"`
	Error            string `json:"error,omitempty"`
}

func (s *HTTPSigner) Sign(ctx context.Context, csr string, certType string, chargerID string) (string, error) {
	body, err := json.Marshal(signRequest{
		CSR:             csr,
		CertificateType: certType,
		ChargerID:       chargerID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/sign", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pki: sign request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pki: signer returned %d: %s", resp.StatusCode, raw)
	}

	var parsed signResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("pki: unreadable signer response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("pki: %s", parsed.Error)
	}
	if parsed.CertificateChain == "" {
		return "", fmt.Errorf("pki: signer returned an empty chain")
	}
	return parsed.CertificateChain, nil
}
