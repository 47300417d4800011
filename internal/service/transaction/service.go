package transaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gridfleet/gateway/internal/adapter/queue"
	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ports"
)

type Service struct {
	repo ports.TransactionRepository
	mq   queue.MessageQueue
	log  *zap.Logger
}

func NewService(repo ports.TransactionRepository, mq queue.MessageQueue, log *zap.Logger) ports.TransactionService {
	return &Service{
		repo: repo,
		mq:   mq,
		log:  log,
	}
}

func (s *Service) StartTransaction(ctx context.Context, chargerID string, connector int, idTag, ocppTxID string, meterStart int, startedAt time.Time) (*domain.Transaction, error) {
	chargerID = domain.NormalizeSerial(chargerID)

	// A lingering active record on this connector means the stop frame
	// never arrived. Close it out so the new session owns the connector.
	if prev, err := s.repo.FindActive(ctx, chargerID, connector); err == nil && prev != nil {
		s.log.Warn("Closing stale active transaction",
			zap.String("charger_id", chargerID),
			zap.Int("connector", connector),
			zap.String("ocpp_tx_id", prev.OcppTransactionID),
		)
		now := time.Now().UTC()
		prev.Status = domain.TransactionStatusCompleted
		prev.StopReason = "SupersededByNewSession"
		prev.StoppedAt = &now
		if err := s.repo.Update(ctx, prev); err != nil {
			s.log.Error("Failed to close stale transaction", zap.Error(err))
		}
	}

	tx := &domain.Transaction{
		ID:                uuid.NewString(),
		ChargerID:         chargerID,
		Connector:         connector,
		OcppTransactionID: ocppTxID,
		IDTag:             idTag,
		MeterStart:        meterStart,
		Status:            domain.TransactionStatusActive,
		StartedAt:         startedAt,
	}
	if err := s.repo.Save(ctx, tx); err != nil {
		return nil, err
	}

	s.publish("gateway.transaction.started", tx)
	return tx, nil
}

func (s *Service) StopTransaction(ctx context.Context, chargerID, ocppTxID string, meterStop int, reason string, stoppedAt time.Time) (*domain.Transaction, error) {
	chargerID = domain.NormalizeSerial(chargerID)

	tx, err := s.repo.FindByOcppID(ctx, chargerID, ocppTxID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		// The start frame was lost or predates this deployment. Record
		// what the device reported rather than dropping the stop.
		s.log.Warn("Stop for unknown transaction, recording orphan",
			zap.String("charger_id", chargerID),
			zap.String("ocpp_tx_id", ocppTxID),
		)
		tx = &domain.Transaction{
			ID:                uuid.NewString(),
			ChargerID:         chargerID,
			OcppTransactionID: ocppTxID,
			MeterStart:        meterStop,
			StartedAt:         stoppedAt,
		}
	}

	tx.MeterStop = meterStop
	if delta := meterStop - tx.MeterStart; delta > 0 {
		tx.EnergyWh = delta
	}
	tx.Status = domain.TransactionStatusCompleted
	tx.StopReason = reason
	tx.StoppedAt = &stoppedAt

	if err := s.repo.Save(ctx, tx); err != nil {
		return nil, err
	}

	s.publish("gateway.transaction.stopped", tx)
	return tx, nil
}

func (s *Service) AddMeterSample(ctx context.Context, chargerID, ocppTxID string, energyWh int) error {
	chargerID = domain.NormalizeSerial(chargerID)

	tx, err := s.repo.FindByOcppID(ctx, chargerID, ocppTxID)
	if err != nil {
		return err
	}
	if tx == nil || tx.Status != domain.TransactionStatusActive {
		return nil
	}

	// Meter registers only move forward. A lower reading is a device
	// register reset; keep the running total.
	if delta := energyWh - tx.MeterStart; delta > tx.EnergyWh {
		tx.EnergyWh = delta
		return s.repo.Update(ctx, tx)
	}
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) GetActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
	return s.repo.FindActive(ctx, domain.NormalizeSerial(chargerID), connector)
}

func (s *Service) publish(subject string, tx *domain.Transaction) {
	data, err := json.Marshal(tx)
	if err != nil {
		return
	}
	if err := s.mq.Publish(subject, data); err != nil {
		s.log.Debug("Event publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
