package domain

import (
	"time"
)

type TransactionStatus string

const (
	TransactionStatusActive    TransactionStatus = "active"
	TransactionStatusCompleted TransactionStatus = "completed"
)

// Transaction is one charging session. At most one active transaction
// may exist per (charger, connector) pair.
type Transaction struct {
	ID        string `json:"id" gorm:"primaryKey"`
	ChargerID string `json:"charger_id" gorm:"index"`
	Connector int    `json:"connector"`

	// OcppTransactionID is the device-assigned transaction id: the
	// transactionId string of a 2.x TransactionEvent or the numeric id
	// issued on a 1.6 StartTransaction, rendered as a string.
	OcppTransactionID string `json:"ocpp_transaction_id" gorm:"index"`

	IDTag      string            `json:"id_tag"`
	MeterStart int               `json:"meter_start"`
	MeterStop  int               `json:"meter_stop"`
	EnergyWh   int               `json:"energy_wh"`
	Status     TransactionStatus `json:"status"`
	StopReason string            `json:"stop_reason,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
