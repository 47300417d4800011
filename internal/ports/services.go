package ports

import (
	"context"
	"time"

	"github.com/gridfleet/gateway/internal/domain"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}

// Notifier is the fire-and-forget alert sink. Implementations log
// delivery failures; they never return them to the protocol engine.
type Notifier interface {
	Broadcast(ctx context.Context, subject, body string)
}

// CertificateSigner signs a device CSR and returns the PEM chain.
type CertificateSigner interface {
	Sign(ctx context.Context, csr string, certType string, chargerID string) (string, error)
}

type DeviceService interface {
	GetCharger(ctx context.Context, id string) (*domain.Charger, error)
	ListChargers(ctx context.Context, filter map[string]interface{}) ([]domain.Charger, error)
	UpdateStatus(ctx context.Context, id string, connector int, status domain.ChargerStatus) error
	MarkConnected(ctx context.Context, id string, protocol string) error
	MarkDisconnected(ctx context.Context, id string) error
	RecordBoot(ctx context.Context, id, vendor, model, firmware string) error
	Heartbeat(ctx context.Context, id string) error
	CacheConfigValue(ctx context.Context, id, key, value string) error
	SetLocalListVersion(ctx context.Context, id string, version int) error
}

type TransactionService interface {
	StartTransaction(ctx context.Context, chargerID string, connector int, idTag, ocppTxID string, meterStart int, startedAt time.Time) (*domain.Transaction, error)
	StopTransaction(ctx context.Context, chargerID, ocppTxID string, meterStop int, reason string, stoppedAt time.Time) (*domain.Transaction, error)
	AddMeterSample(ctx context.Context, chargerID, ocppTxID string, energyWh int) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	GetActive(ctx context.Context, chargerID string, connector int) (*domain.Transaction, error)
}
