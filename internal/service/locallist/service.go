package locallist

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

var ErrRejected = errors.New("local list update rejected by charge point")

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

// AuthorizationEntry is one idTag row of the device-side allow list.
type AuthorizationEntry struct {
	IDTag  string `json:"idTag"`
	Status string `json:"status"`
}

type sendLocalListReq struct {
	ListVersion            int             `json:"listVersion"`
	UpdateType             string          `json:"updateType"`
	LocalAuthorizationList []authListEntry `json:"localAuthorizationList,omitempty"`
}

type authListEntry struct {
	IDTag     string             `json:"idTag"`
	IDTagInfo *authListEntryInfo `json:"idTagInfo,omitempty"`
}

type authListEntryInfo struct {
	Status string `json:"status"`
}

// Push sends a full or differential authorization list to the device.
// The cached list version is only advanced once the device accepts.
func (s *Service) Push(ctx context.Context, serial string, version int, entries []AuthorizationEntry, updateType string) (*domain.WorkflowRecord, error) {
	serial = domain.NormalizeSerial(serial)
	if updateType == "" {
		updateType = "Full"
	}

	req := sendLocalListReq{
		ListVersion: version,
		UpdateType:  updateType,
	}
	for _, e := range entries {
		entry := authListEntry{IDTag: e.IDTag}
		if e.Status != "" {
			entry.IDTagInfo = &authListEntryInfo{Status: e.Status}
		}
		req.LocalAuthorizationList = append(req.LocalAuthorizationList, entry)
	}
	payload, _ := json.Marshal(req)

	rec := &domain.WorkflowRecord{
		ID:             uuid.NewString(),
		Kind:           domain.WorkflowLocalListSync,
		ChargerID:      serial,
		Action:         string(ocpp.ActionSendLocalList),
		Status:         domain.WorkflowStatusPending,
		ListVersion:    &version,
		RequestPayload: string(payload),
		RequestedAt:    time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return nil, err
	}

	outcome, err := s.caller.Dispatch(ctx, serial, 0, ocpp.ActionSendLocalList, req, ocpp.PendingMeta{
		ocpp.MetaWorkflowID:  rec.ID,
		ocpp.MetaListVersion: version,
		ocpp.MetaLogKey:      fmt.Sprintf("locallist/%s", rec.ID),
	})
	if err != nil {
		_ = s.workflows.UpdateFields(ctx, rec.ID, map[string]interface{}{
			"status":      domain.WorkflowStatusError,
			"status_info": err.Error(),
		})
		return nil, err
	}
	if !outcome.Success {
		return rec, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}

	rec.Status = domain.WorkflowStatusAccepted
	return rec, nil
}

// Version asks the device which list version it currently holds and
// reconciles the stored copy.
func (s *Service) Version(ctx context.Context, serial string) (int, error) {
	serial = domain.NormalizeSerial(serial)

	rec := &domain.WorkflowRecord{
		ID:          uuid.NewString(),
		Kind:        domain.WorkflowLocalListSync,
		ChargerID:   serial,
		Action:      string(ocpp.ActionGetLocalListVersion),
		Status:      domain.WorkflowStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.workflows.Save(ctx, rec); err != nil {
		return 0, err
	}

	outcome, err := s.caller.Dispatch(ctx, serial, 0, ocpp.ActionGetLocalListVersion,
		struct{}{}, ocpp.PendingMeta{
			ocpp.MetaWorkflowID: rec.ID,
			ocpp.MetaLogKey:     fmt.Sprintf("locallist/%s/version", rec.ID),
		})
	if err != nil {
		return 0, err
	}
	if !outcome.Success {
		return 0, fmt.Errorf("%w: %s", ErrRejected, outcome.Detail)
	}

	var resp struct {
		ListVersion int `json:"listVersion"`
	}
	if err := json.Unmarshal(outcome.Payload, &resp); err != nil {
		return 0, err
	}
	return resp.ListVersion, nil
}
