package domain

import (
	"time"
)

type WorkflowKind string

const (
	WorkflowFirmwareDeployment   WorkflowKind = "firmware_deployment"
	WorkflowCertificateOperation WorkflowKind = "certificate_operation"
	WorkflowDiagnosticsRequest   WorkflowKind = "diagnostics_request"
	WorkflowReservation          WorkflowKind = "reservation"
	WorkflowChargingProfile      WorkflowKind = "charging_profile"
	WorkflowLocalListSync        WorkflowKind = "local_list_sync"
	WorkflowCommandRequest       WorkflowKind = "command_request"
)

type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "Pending"
	WorkflowStatusAccepted  WorkflowStatus = "Accepted"
	WorkflowStatusRejected  WorkflowStatus = "Rejected"
	WorkflowStatusError     WorkflowStatus = "Error"
	WorkflowStatusCompleted WorkflowStatus = "Completed"
)

// WorkflowRecord tracks one multi-step device operation. A coordinator
// creates the record before issuing the Call; the matching call-result
// or call-error handler finishes it, locating the row by the primary
// key carried in the pending-call metadata.
type WorkflowRecord struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	Kind      WorkflowKind `json:"kind" gorm:"index"`
	ChargerID string       `json:"charger_id" gorm:"index"`
	Connector *int         `json:"connector,omitempty"`
	Action    string       `json:"action"`

	Status     WorkflowStatus `json:"status"`
	StatusInfo string         `json:"status_info,omitempty"`

	// Stage tracks multi-hop progress for remote start/stop requests:
	// requested -> accepted -> started -> completed.
	Stage string `json:"stage,omitempty"`

	RequestPayload  string `json:"request_payload,omitempty"`
	ResponsePayload string `json:"response_payload,omitempty"`

	// Reservation bookkeeping.
	ReservationID *int   `json:"reservation_id,omitempty" gorm:"index"`
	EvcsConfirmed bool   `json:"evcs_confirmed"`
	EvcsStatus    string `json:"evcs_status,omitempty"`

	// Charging-profile / local-list bookkeeping.
	ProfileID   *int `json:"profile_id,omitempty"`
	ListVersion *int `json:"list_version,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	CommandStageRequested = "requested"
	CommandStageAccepted  = "accepted"
	CommandStageStarted   = "started"
	CommandStageCompleted = "completed"
)
