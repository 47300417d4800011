package ports

import (
	"context"

	"github.com/gridfleet/gateway/internal/domain"
)

type ChargerRepository interface {
	Save(ctx context.Context, c *domain.Charger) error
	FindByID(ctx context.Context, id string) (*domain.Charger, error)
	FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error)
	UpdateStatus(ctx context.Context, id string, status domain.ChargerStatus) error
	UpdateConnectorStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
	SetConnected(ctx context.Context, id string, connected bool) error
}

type TransactionRepository interface {
	Save(ctx context.Context, tx *domain.Transaction) error
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindByOcppID(ctx context.Context, chargerID, ocppID string) (*domain.Transaction, error)
	FindActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error)
	FindHistory(ctx context.Context, chargerID string, limit int) ([]domain.Transaction, error)
	Update(ctx context.Context, tx *domain.Transaction) error
}

type WorkflowRepository interface {
	Save(ctx context.Context, rec *domain.WorkflowRecord) error
	FindByID(ctx context.Context, id string) (*domain.WorkflowRecord, error)
	FindByCharger(ctx context.Context, chargerID string, kind domain.WorkflowKind, limit int) ([]domain.WorkflowRecord, error)
	UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error
}
