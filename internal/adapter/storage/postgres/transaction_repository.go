package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ports"
)

type TransactionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTransactionRepository(db *gorm.DB, log *zap.Logger) ports.TransactionRepository {
	return &TransactionRepository{
		db:  db,
		log: log,
	}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	defer observe("transaction_save")()

	result := r.db.WithContext(ctx).Save(tx)
	if result.Error != nil {
		r.log.Error("Failed to save transaction",
			zap.String("transaction_id", tx.ID),
			zap.String("charger_id", tx.ChargerID),
			zap.Error(result.Error),
		)
		return result.Error
	}
	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	defer observe("transaction_find")()

	var tx domain.Transaction
	result := r.db.WithContext(ctx).First(&tx, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &tx, nil
}

func (r *TransactionRepository) FindByOcppID(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error) {
	defer observe("transaction_find_ocpp")()

	var tx domain.Transaction
	result := r.db.WithContext(ctx).
		Where("charger_id = ? AND ocpp_transaction_id = ?", chargerID, ocppID).
		Order("started_at DESC").
		First(&tx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &tx, nil
}

func (r *TransactionRepository) FindActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error) {
	defer observe("transaction_find_active")()

	var tx domain.Transaction
	result := r.db.WithContext(ctx).
		Where("charger_id = ? AND connector = ? AND status = ?",
			chargerID, connector, domain.TransactionStatusActive).
		Order("started_at DESC").
		First(&tx)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &tx, nil
}

func (r *TransactionRepository) FindHistory(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error) {
	defer observe("transaction_history")()

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var txs []domain.Transaction
	result := r.db.WithContext(ctx).
		Where("charger_id = ?", chargerID).
		Order("started_at DESC").
		Limit(limit).
		Find(&txs)
	if result.Error != nil {
		return nil, result.Error
	}
	return txs, nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	defer observe("transaction_update")()

	result := r.db.WithContext(ctx).Save(tx)
	return result.Error
}
