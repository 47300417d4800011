package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gridfleet/gateway/internal/domain"
	"github.com/gridfleet/gateway/internal/observability/telemetry"
	"github.com/gridfleet/gateway/internal/ports"
)

type ChargerRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChargerRepository(db *gorm.DB, log *zap.Logger) ports.ChargerRepository {
	return &ChargerRepository{
		db:  db,
		log: log,
	}
}

func (r *ChargerRepository) Save(ctx context.Context, c *domain.Charger) error {
	defer observe("charger_save")()

	result := r.db.WithContext(ctx).Save(c)
	if result.Error != nil {
		r.log.Error("Failed to save charger", zap.String("charger_id", c.ID), zap.Error(result.Error))
		return result.Error
	}
	return nil
}

func (r *ChargerRepository) FindByID(ctx context.Context, id string) (*domain.Charger, error) {
	defer observe("charger_find")()

	var c domain.Charger
	result := r.db.WithContext(ctx).Preload("Connectors").First(&c, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &c, nil
}

func (r *ChargerRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error) {
	defer observe("charger_list")()

	var chargers []domain.Charger
	query := r.db.WithContext(ctx).Preload("Connectors")
	if status, ok := filter["status"]; ok {
		query = query.Where("status = ?", status)
	}
	if connected, ok := filter["connected"]; ok {
		query = query.Where("connected = ?", connected)
	}

	result := query.Order("id").Find(&chargers)
	if result.Error != nil {
		return nil, result.Error
	}
	return chargers, nil
}

func (r *ChargerRepository) UpdateStatus(ctx context.Context, id string, status domain.ChargerStatus) error {
	defer observe("charger_update_status")()

	result := r.db.WithContext(ctx).Model(&domain.Charger{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":    status,
			"last_seen": time.Now().UTC(),
		})
	return result.Error
}

func (r *ChargerRepository) UpdateConnectorStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error {
	defer observe("connector_update_status")()

	result := r.db.WithContext(ctx).Model(&domain.Connector{}).
		Where("charger_id = ? AND connector_id = ?", id, connector).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	// First sighting of this connector; create the row.
	if result.RowsAffected == 0 {
		return r.db.WithContext(ctx).Create(&domain.Connector{
			ChargerID:   id,
			ConnectorID: connector,
			Status:      status,
		}).Error
	}
	return nil
}

func (r *ChargerRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	defer observe("charger_update_fields")()

	result := r.db.WithContext(ctx).Model(&domain.Charger{}).
		Where("id = ?", id).
		Updates(fields)
	return result.Error
}

func (r *ChargerRepository) SetConnected(ctx context.Context, id string, connected bool) error {
	defer observe("charger_set_connected")()

	result := r.db.WithContext(ctx).Model(&domain.Charger{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"connected": connected,
			"last_seen": time.Now().UTC(),
		})
	return result.Error
}

// observe records one repository call in the database latency histogram.
func observe(operation string) func() {
	start := time.Now()
	return func() {
		telemetry.DatabaseLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
