package ocpp

// Action is an OCPP action name. The dispatcher routes through static
// tables keyed by Action; unknown actions fall through to a default
// empty reply instead of failing.
type Action string

// Actions initiated by the charge point.
const (
	ActionBootNotification                  Action = "BootNotification"
	ActionHeartbeat                         Action = "Heartbeat"
	ActionStatusNotification                Action = "StatusNotification"
	ActionMeterValues                       Action = "MeterValues"
	ActionStartTransaction                  Action = "StartTransaction"
	ActionStopTransaction                   Action = "StopTransaction"
	ActionTransactionEvent                  Action = "TransactionEvent"
	ActionAuthorize                         Action = "Authorize"
	ActionDataTransfer                      Action = "DataTransfer"
	ActionFirmwareStatusNotification        Action = "FirmwareStatusNotification"
	ActionPublishFirmwareStatusNotification Action = "PublishFirmwareStatusNotification"
	ActionDiagnosticsStatusNotification     Action = "DiagnosticsStatusNotification"
	ActionLogStatusNotification             Action = "LogStatusNotification"
	ActionSignCertificate                   Action = "SignCertificate"
	ActionGet15118EVCertificate             Action = "Get15118EVCertificate"
	ActionGetCertificateStatus              Action = "GetCertificateStatus"
	ActionSecurityEventNotification         Action = "SecurityEventNotification"
	ActionNotifyReport                      Action = "NotifyReport"
	ActionNotifyEvent                       Action = "NotifyEvent"
	ActionNotifyMonitoringReport            Action = "NotifyMonitoringReport"
	ActionNotifyDisplayMessages             Action = "NotifyDisplayMessages"
	ActionNotifyCustomerInformation         Action = "NotifyCustomerInformation"
	ActionNotifyChargingLimit               Action = "NotifyChargingLimit"
	ActionClearedChargingLimit              Action = "ClearedChargingLimit"
	ActionNotifyEVChargingNeeds             Action = "NotifyEVChargingNeeds"
	ActionNotifyEVChargingSchedule          Action = "NotifyEVChargingSchedule"
	ActionReportChargingProfiles            Action = "ReportChargingProfiles"
	ActionReservationStatusUpdate           Action = "ReservationStatusUpdate"
)

// Actions initiated by the central system.
const (
	ActionGetConfiguration           Action = "GetConfiguration"
	ActionChangeConfiguration        Action = "ChangeConfiguration"
	ActionGetVariables               Action = "GetVariables"
	ActionSetVariables               Action = "SetVariables"
	ActionChangeAvailability         Action = "ChangeAvailability"
	ActionUnlockConnector            Action = "UnlockConnector"
	ActionReset                      Action = "Reset"
	ActionReserveNow                 Action = "ReserveNow"
	ActionCancelReservation          Action = "CancelReservation"
	ActionSetChargingProfile         Action = "SetChargingProfile"
	ActionClearChargingProfile       Action = "ClearChargingProfile"
	ActionGetCompositeSchedule       Action = "GetCompositeSchedule"
	ActionGetChargingProfiles        Action = "GetChargingProfiles"
	ActionUpdateFirmware             Action = "UpdateFirmware"
	ActionPublishFirmware            Action = "PublishFirmware"
	ActionUnpublishFirmware          Action = "UnpublishFirmware"
	ActionGetDiagnostics             Action = "GetDiagnostics"
	ActionGetLog                     Action = "GetLog"
	ActionCertificateSigned          Action = "CertificateSigned"
	ActionInstallCertificate         Action = "InstallCertificate"
	ActionDeleteCertificate          Action = "DeleteCertificate"
	ActionGetInstalledCertificateIds Action = "GetInstalledCertificateIds"
	ActionSendLocalList              Action = "SendLocalList"
	ActionGetLocalListVersion        Action = "GetLocalListVersion"
	ActionTriggerMessage             Action = "TriggerMessage"
	ActionRemoteStartTransaction     Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction      Action = "RemoteStopTransaction"
	ActionRequestStartTransaction    Action = "RequestStartTransaction"
	ActionRequestStopTransaction     Action = "RequestStopTransaction"
	ActionGetTransactionStatus       Action = "GetTransactionStatus"
	ActionGetBaseReport              Action = "GetBaseReport"
	ActionGetReport                  Action = "GetReport"
	ActionSetMonitoringBase          Action = "SetMonitoringBase"
	ActionSetVariableMonitoring      Action = "SetVariableMonitoring"
	ActionClearVariableMonitoring    Action = "ClearVariableMonitoring"
	ActionSetDisplayMessage          Action = "SetDisplayMessage"
	ActionGetDisplayMessages         Action = "GetDisplayMessages"
	ActionClearDisplayMessage        Action = "ClearDisplayMessage"
	ActionCustomerInformation        Action = "CustomerInformation"
	ActionSetNetworkProfile          Action = "SetNetworkProfile"
)
