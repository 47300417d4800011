package certs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ocpp"
	"github.com/gridfleet/gateway/internal/ports"
)

var ErrRejected = errors.New("certificate operation rejected by charge point")

type caller interface {
	Dispatch(ctx context.Context, serial string, connector int, action ocpp.Action, payload interface{}, meta ocpp.PendingMeta) (ocpp.CallOutcome, error)
}

type Service struct {
	caller    caller
	workflows ports.WorkflowRepository
	log       *zap.Logger
}

func NewService(c caller, workflows ports.WorkflowRepository, log *zap.Logger) *Service {
	return &Service{
		caller:    c,
		workflows: workflows,
		log:       log,
	}
}

type installCertificateReq struct {
	CertificateType string `json:"certificateType"`
	Certificate     string `json:"certificate"`
}

type deleteCertificateReq struct {
	CertificateHashData CertificateHashData `json:"certificateHashData"`
}

type CertificateHashData struct {
	HashAlgorithm  string `json:"hashAlgorithm"`
	IssuerNameHash string `json:"issuerNameHash"`
	IssuerKeyHash  string `json:"issuerKeyHash"`
	SerialNumber   string `json:"serialNumber"`
}

type getInstalledCertificateIdsReq struct {
	CertificateType []string `json:"certificateType,omitempty"`
}

// InstalledCertificate is one entry of a device certificate inventory.
type InstalledCertificate struct {
	CertificateType     string          `json:"certificateType,omitempty"`
	CertificateHashData json.RawMessage `json:"certificateHashData"`
}

// Install pushes a CA certificate to the device trust store.
func (s *Service) Install(ctx context.Context, serial, certType, certificatePEM string) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := installCertificateReq{
		CertificateType: certType,
		Certificate:     certificatePEM,
	}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionInstallCertificate), certType, req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.dispatch(ctx, rec, ocpp.ActionInstallCertificate, certType, req)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return rec, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}
	rec.Status = domain.WorkflowStatusAccepted
	return rec, nil
}

// Delete removes a certificate identified by its hash data.
func (s *Service) Delete(ctx context.Context, serial string, hash CertificateHashData) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)

	req := deleteCertificateReq{CertificateHashData: hash}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionDeleteCertificate), "", req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.dispatch(ctx, rec, ocpp.ActionDeleteCertificate, "", req)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return rec, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}
	rec.Status = domain.WorkflowStatusAccepted
	return rec, nil
}

// ListInstalled queries the device certificate inventory.
func (s *Service) ListInstalled(ctx context.Context, serial string, certTypes []string) ([]InstalledCertificate, error) {
	serial = domain.NormalizeSerial(serial)

	req := getInstalledCertificateIdsReq{CertificateType: certTypes}
	rec, err := s.createRecord(ctx, serial, string(ocpp.ActionGetInstalledCertificateIds), "", req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.dispatch(ctx, rec, ocpp.ActionGetInstalledCertificateIds, "", req)
	if err != nil {
		return nil, err
	}
	if !outcome.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}

	var resp struct {
		CertificateHashDataChain []InstalledCertificate `json:"certificateHashDataChain"`
	}
	if err := json.Unmarshal(outcome.Payload, &resp); err != nil {
		return nil, err
	}
	return resp.CertificateHashDataChain, nil
}

// History returns recent certificate operations for a charger,
// including device-initiated signing requests.
func (s *Service) History(ctx context.Context, serial string, limit int) ([]domain.WorkflowRecord, error) {
	return s.workflows.FindByCharger(ctx, domain.NormalizeSerial(serial), domain.WorkflowCertificateOperation, limit)
}

func (s *Service) createRecord(ctx context.Context, serial, action, certType string, req interface{}) (*domain.WorkflowRecord, error) {
	payload, _ := json.Marshal(req)
	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowCertificateOperation,
		ChargerID:      serial,
		Action:         action,
		Status:         domain.WorkflowStatusPending,
		StatusInfo:     certType,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) dispatch(ctx context.Context, rec *domain.WorkflowRecord, action ocpp.Action, certType string, req interface{}) (ocpp.CallOutcome, error) {
	meta := ocpp.PendingMeta{
		ocpp.MetaWorkflowID: rec.ID,
		ocpp.MetaLogKey:     fmt.Sprintf("certs/%s", rec.ID),
	}
	if certType != "" {
		meta[ocpp.MetaCertType] = certType
	}

	outcome, err := s.caller.Dispatch(ctx, rec.ChargerID, 0, action, req, meta)
	if err != nil {
		_ = s.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
			"status":      domain.WorkflowStatusError,
			"status_info": err.Error(),
		})
		return ocpp.CallOutcome{}, err
	}
	return outcome, nil
}
