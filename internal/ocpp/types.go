package ocpp

import "encoding/json"

// Payload shapes for the OCPP actions the gateway parses. Fields the
// engine never reads are left out; unknown fields pass through
// untouched because handlers echo raw payloads into workflow records.

// --- Charge-point initiated requests ---

type bootNotificationReq struct {
	// OCPP 1.6 shape.
	ChargePointVendor string `json:"chargePointVendor,omitempty"`
	ChargePointModel  string `json:"chargePointModel,omitempty"`
	ChargePointSerial string `json:"chargePointSerialNumber,omitempty"`
	FirmwareVersion   string `json:"firmwareVersion,omitempty"`

	// OCPP 2.x shape.
	Reason          string `json:"reason,omitempty"`
	ChargingStation *struct {
		VendorName      string `json:"vendorName,omitempty"`
		Model           string `json:"model,omitempty"`
		SerialNumber    string `json:"serialNumber,omitempty"`
		FirmwareVersion string `json:"firmwareVersion,omitempty"`
	} `json:"chargingStation,omitempty"`
}

type bootNotificationResp struct {
	Status      string `json:"status"`
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

type heartbeatResp struct {
	CurrentTime string `json:"currentTime"`
}

type statusNotificationReq struct {
	// OCPP 1.6 shape.
	ConnectorID int    `json:"connectorId"`
	Status      string `json:"status,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`

	// OCPP 2.x shape.
	Timestamp       string `json:"timestamp,omitempty"`
	ConnectorStatus string `json:"connectorStatus,omitempty"`
	EvseID          int    `json:"evseId,omitempty"`
}

type sampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Unit      string `json:"unit,omitempty"`

	UnitOfMeasure *struct {
		Unit string `json:"unit,omitempty"`
	} `json:"unitOfMeasure,omitempty"`
}

type meterValue struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

type meterValuesReq struct {
	ConnectorID   int          `json:"connectorId"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []meterValue `json:"meterValue"`
}

type startTransactionReq struct {
	ConnectorID int    `json:"connectorId"`
	IDTag       string `json:"idTag"`
	MeterStart  int    `json:"meterStart"`
	Timestamp   string `json:"timestamp"`
}

type idTagInfo struct {
	Status string `json:"status"`
}

type startTransactionResp struct {
	TransactionID int       `json:"transactionId"`
	IDTagInfo     idTagInfo `json:"idTagInfo"`
}

type stopTransactionReq struct {
	TransactionID int    `json:"transactionId"`
	MeterStop     int    `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	Reason        string `json:"reason,omitempty"`
	IDTag         string `json:"idTag,omitempty"`
}

type stopTransactionResp struct {
	IDTagInfo *idTagInfo `json:"idTagInfo,omitempty"`
}

type transactionEventReq struct {
	EventType string `json:"eventType"`
	Timestamp string `json:"timestamp"`
	TriggerReason string `json:"triggerReason,omitempty"`

	TransactionInfo struct {
		TransactionID string `json:"transactionId"`
		ChargingState string `json:"chargingState,omitempty"`
		StoppedReason string `json:"stoppedReason,omitempty"`
		RemoteStartID *int   `json:"remoteStartId,omitempty"`
	} `json:"transactionInfo"`

	Evse *struct {
		ID          int `json:"id"`
		ConnectorID int `json:"connectorId,omitempty"`
	} `json:"evse,omitempty"`

	MeterValue []meterValue `json:"meterValue,omitempty"`

	IDToken *struct {
		IDToken string `json:"idToken"`
		Type    string `json:"type,omitempty"`
	} `json:"idToken,omitempty"`
}

type authorizeReq struct {
	// OCPP 1.6 shape.
	IDTag string `json:"idTag,omitempty"`

	// OCPP 2.x shape.
	IDToken *struct {
		IDToken string `json:"idToken"`
		Type    string `json:"type,omitempty"`
	} `json:"idToken,omitempty"`
}

type authorizeResp struct {
	IDTagInfo   *idTagInfo `json:"idTagInfo,omitempty"`
	IDTokenInfo *idTagInfo `json:"idTokenInfo,omitempty"`
}

type dataTransferReq struct {
	VendorID  string          `json:"vendorId"`
	MessageID string          `json:"messageId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type dataTransferResp struct {
	Status string `json:"status"`
}

type firmwareStatusReq struct {
	Status    string `json:"status"`
	RequestID *int   `json:"requestId,omitempty"`
}

type diagnosticsStatusReq struct {
	Status string `json:"status"`
}

type logStatusReq struct {
	Status    string `json:"status"`
	RequestID *int   `json:"requestId,omitempty"`
}

type signCertificateReq struct {
	CSR             string `json:"csr"`
	CertificateType string `json:"certificateType,omitempty"`
}

type securityEventReq struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	TechInfo  string `json:"techInfo,omitempty"`
}

type reservationStatusUpdateReq struct {
	ReservationID           int    `json:"reservationId"`
	ReservationUpdateStatus string `json:"reservationUpdateStatus"`
}

type notifyReportReq struct {
	RequestID int  `json:"requestId"`
	Tbc       bool `json:"tbc,omitempty"`
	SeqNo     int  `json:"seqNo,omitempty"`
}

// --- Central-system initiated replies the result handlers parse ---

// statusResp covers the large family of replies whose only interesting
// field is a status enum plus optional status info.
type statusResp struct {
	Status     string `json:"status"`
	StatusInfo *struct {
		ReasonCode     string `json:"reasonCode,omitempty"`
		AdditionalInfo string `json:"additionalInfo,omitempty"`
	} `json:"statusInfo,omitempty"`
}

type configurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type getConfigurationResp struct {
	ConfigurationKey []configurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

type getVariablesResp struct {
	GetVariableResult []struct {
		AttributeStatus string `json:"attributeStatus"`
		AttributeValue  string `json:"attributeValue,omitempty"`
		Component       struct {
			Name string `json:"name"`
		} `json:"component"`
		Variable struct {
			Name string `json:"name"`
		} `json:"variable"`
	} `json:"getVariableResult"`
}

type setVariablesResp struct {
	SetVariableResult []struct {
		AttributeStatus string `json:"attributeStatus"`
		Component       struct {
			Name string `json:"name"`
		} `json:"component"`
		Variable struct {
			Name string `json:"name"`
		} `json:"variable"`
	} `json:"setVariableResult"`
}

type localListVersionResp struct {
	ListVersion int `json:"listVersion"`
}

type sendLocalListResp struct {
	Status                  string `json:"status"`
	CurrentLocalListVersion *int   `json:"currentLocalListVersion,omitempty"`
}

type getCompositeScheduleResp struct {
	Status   string          `json:"status"`
	Schedule json.RawMessage `json:"chargingSchedule,omitempty"`
}

type getInstalledCertificateIdsResp struct {
	Status                   string          `json:"status"`
	CertificateHashDataChain json.RawMessage `json:"certificateHashDataChain,omitempty"`
}

type getTransactionStatusResp struct {
	OngoingIndicator *bool `json:"ongoingIndicator,omitempty"`
	MessagesInQueue  bool  `json:"messagesInQueue"`
}

// certificateSignedReq is the Call the gateway issues to deliver a
// freshly signed certificate chain back to the device.
type certificateSignedReq struct {
	CertificateChain string `json:"certificateChain"`
	CertificateType  string `json:"certificateType,omitempty"`
}
