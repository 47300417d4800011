package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/ports"
)

type WorkflowRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWorkflowRepository(db *gorm.DB, log *zap.Logger) ports.WorkflowRepository {
	return &WorkflowRepository{
		db:  db,
		log: log,
	}
}

func (r *WorkflowRepository) Save(ctx context.Context, rec *domain.WorkflowRecord) error {
	defer observe("workflow_save")()

	result := r.db.WithContext(ctx).Save(rec)
	if result.Error != nil {
		r.log.Error("Failed to save workflow record",
			zap.String("workflow_id", rec.ID),
			zap.String("kind", string(rec.Kind)),
			zap.Error(result.Error),
		)
		return result.Error
	}
	return nil
}

func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*domain.WorkflowRecord, error) {
	defer observe("workflow_find")()

	var rec domain.WorkflowRecord
	result := r.db.WithContext(ctx).First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

func (r *WorkflowRepository) FindByCharger(ctx context.Context, chargerID string, kind domain.WorkflowKind, limit int) ([]domain.WorkflowRecord, error) {
	defer observe("workflow_list")()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var recs []domain.WorkflowRecord
	result := r.db.WithContext(ctx).
		Where("charger_id = ? AND kind = ?", chargerID, kind).
		Order("requested_at DESC").
		Limit(limit).
		Find(&recs)
	if result.Error != nil {
		return nil, result.Error
	}
	return recs, nil
}

func (r *WorkflowRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	defer observe("workflow_update")()

	fields["updated_at"] = time.Now().UTC()
	result := r.db.WithContext(ctx).Model(&domain.WorkflowRecord{}).
		Where("id = ?", id).
		Updates(fields)
	return result.Error
}
