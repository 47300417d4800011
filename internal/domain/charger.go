package domain

import (
	"strings"
	"time"
)

type ChargerStatus string

const (
	ChargerStatusAvailable   ChargerStatus = "Available"
	ChargerStatusPreparing   ChargerStatus = "Preparing"
	ChargerStatusCharging    ChargerStatus = "Charging"
	ChargerStatusFinishing   ChargerStatus = "Finishing"
	ChargerStatusReserved    ChargerStatus = "Reserved"
	ChargerStatusFaulted     ChargerStatus = "Faulted"
	ChargerStatusUnavailable ChargerStatus = "Unavailable"
	ChargerStatusOffline     ChargerStatus = "Offline"
)

// Charger is the durable record for a charge point. The ID is the
// normalized serial (upper case, unique across the fleet).
type Charger struct {
	ID              string        `json:"id" gorm:"primaryKey"`
	Vendor          string        `json:"vendor"`
	Model           string        `json:"model"`
	FirmwareVersion string        `json:"firmware_version"`
	ProtocolVersion string        `json:"protocol_version"`
	Status          ChargerStatus `json:"status"`
	Connected       bool          `json:"connected"`
	LastSeen        time.Time     `json:"last_seen"`
	LastBootAt      *time.Time    `json:"last_boot_at,omitempty"`

	// WebSocket Basic auth. Enforced only when RequiresWsAuth is set.
	RequiresWsAuth     bool   `json:"requires_ws_auth"`
	WsAuthUser         string `json:"-"`
	WsAuthPasswordHash string `json:"-"`

	// ForwardURL, when set, receives a copy of every raw inbound frame.
	ForwardURL string `json:"forward_url,omitempty"`

	// ConfigSnapshot is the last known device configuration, serialized JSON.
	ConfigSnapshot   string `json:"config_snapshot,omitempty"`
	LocalListVersion int    `json:"local_list_version"`

	Connectors []Connector `json:"connectors" gorm:"foreignKey:ChargerID"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type Connector struct {
	ID          uint          `json:"id" gorm:"primaryKey"`
	ChargerID   string        `json:"charger_id" gorm:"index"`
	ConnectorID int           `json:"connector_id"` // 1-based; 0 addresses the whole station
	Type        string        `json:"type"`
	Status      ChargerStatus `json:"status"`
	MaxPowerKW  float64       `json:"max_power_kw"`
}

// NormalizeSerial canonicalizes a charge point serial for use as an
// identity key. Serials compare case-insensitively.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}
