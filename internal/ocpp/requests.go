package ocpp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownAction is returned when an action has no registered schema.
var ErrUnknownAction = errors.New("unknown ocpp action")

// ErrSchemaViolation wraps required-field and enum failures; callers map it
// to a FormatViolation CallError.
var ErrSchemaViolation = errors.New("payload schema violation")

var validate = validator.New()

// Shared sub-structures.

type IdTagInfo struct {
	ExpiryDate  *string `json:"expiryDate,omitempty"`
	ParentIdTag *string `json:"parentIdTag,omitempty"`
	Status      string  `json:"status" validate:"required,oneof=Accepted Blocked Expired Invalid ConcurrentTx"`
}

type SampledValue struct {
	Value     string  `json:"value" validate:"required"`
	Context   *string `json:"context,omitempty"`
	Format    *string `json:"format,omitempty" validate:"omitempty,oneof=Raw SignedData"`
	Measurand *string `json:"measurand,omitempty"`
	Phase     *string `json:"phase,omitempty"`
	Location  *string `json:"location,omitempty" validate:"omitempty,oneof=Body Cable EV Inlet Outlet"`
	Unit      *string `json:"unit,omitempty"`
}

type MeterValue struct {
	Timestamp    string         `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  *int     `json:"startPeriod" validate:"required"`
	Limit        *float64 `json:"limit" validate:"required"`
	NumberPhases *int     `json:"numberPhases,omitempty"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          *string                  `json:"startSchedule,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit" validate:"required,oneof=A W"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,dive"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

type ChargingProfile struct {
	ChargingProfileID      *int             `json:"chargingProfileId" validate:"required"`
	TransactionID          *int             `json:"transactionId,omitempty"`
	StackLevel             *int             `json:"stackLevel" validate:"required"`
	ChargingProfilePurpose string           `json:"chargingProfilePurpose" validate:"required,oneof=ChargePointMaxProfile TxDefaultProfile TxProfile"`
	ChargingProfileKind    string           `json:"chargingProfileKind" validate:"required,oneof=Absolute Recurring Relative"`
	RecurrencyKind         *string          `json:"recurrencyKind,omitempty" validate:"omitempty,oneof=Daily Weekly"`
	ValidFrom              *string          `json:"validFrom,omitempty"`
	ValidTo                *string          `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule `json:"chargingSchedule" validate:"required"`
}

type AuthorizationData struct {
	IdTag     string     `json:"idTag" validate:"required"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type CertificateHashData struct {
	HashAlgorithm  string `json:"hashAlgorithm" validate:"required,oneof=SHA256 SHA384 SHA512"`
	IssuerNameHash string `json:"issuerNameHash" validate:"required"`
	IssuerKeyHash  string `json:"issuerKeyHash" validate:"required"`
	SerialNumber   string `json:"serialNumber" validate:"required"`
}

type LogParameters struct {
	RemoteLocation  string  `json:"remoteLocation" validate:"required"`
	OldestTimestamp *string `json:"oldestTimestamp,omitempty"`
	LatestTimestamp *string `json:"latestTimestamp,omitempty"`
}

type FirmwareType struct {
	Location           string  `json:"location" validate:"required"`
	RetrieveDateTime   string  `json:"retrieveDateTime" validate:"required"`
	InstallDateTime    *string `json:"installDateTime,omitempty"`
	SigningCertificate string  `json:"signingCertificate" validate:"required"`
	Signature          string  `json:"signature" validate:"required"`
}

// Requests originated by charge stations.

type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty"`
	Iccid                   *string `json:"iccid,omitempty"`
	Imsi                    *string `json:"imsi,omitempty"`
	MeterType               *string `json:"meterType,omitempty"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty"`
}

type DataTransferRequest struct {
	VendorID  string  `json:"vendorId" validate:"required"`
	MessageID *string `json:"messageId,omitempty"`
	Data      *string `json:"data,omitempty"`
}

type DiagnosticsStatusNotificationRequest struct {
	Status string `json:"status" validate:"required,oneof=Idle Uploaded UploadFailed Uploading"`
}

type FirmwareStatusNotificationRequest struct {
	Status string `json:"status" validate:"required,oneof=Downloaded DownloadFailed Downloading Idle InstallationFailed Installing Installed"`
}

type HeartbeatRequest struct{}

type LogStatusNotificationRequest struct {
	Status    string `json:"status" validate:"required,oneof=BadMessage Idle NotSupportedOperation PermissionDenied Uploaded UploadFailure Uploading"`
	RequestID *int   `json:"requestId,omitempty"`
}

type MeterValuesRequest struct {
	ConnectorID   *int         `json:"connectorId" validate:"required"`
	TransactionID *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

type SecurityEventNotificationRequest struct {
	Type      string  `json:"type" validate:"required"`
	Timestamp string  `json:"timestamp" validate:"required"`
	TechInfo  *string `json:"techInfo,omitempty"`
}

type SignCertificateRequest struct {
	CSR string `json:"csr" validate:"required"`
}

type SignedFirmwareStatusNotificationRequest struct {
	Status    string `json:"status" validate:"required,oneof=Downloaded DownloadFailed DownloadScheduled DownloadPaused Downloading Idle InstallationFailed Installing Installed InstallRebooting InstallScheduled InstallVerificationFailed InvalidSignature SignatureVerified"`
	RequestID *int   `json:"requestId,omitempty"`
}

type StartTransactionRequest struct {
	ConnectorID   *int   `json:"connectorId" validate:"required"`
	IdTag         string `json:"idTag" validate:"required,max=20"`
	MeterStart    *int   `json:"meterStart" validate:"required"`
	ReservationID *int   `json:"reservationId,omitempty"`
	Timestamp     string `json:"timestamp" validate:"required"`
}

type StatusNotificationRequest struct {
	ConnectorID     *int    `json:"connectorId" validate:"required"`
	ErrorCode       string  `json:"errorCode" validate:"required,oneof=ConnectorLockFailure EVCommunicationError GroundFailure HighTemperature InternalError LocalListConflict NoError OtherError OverCurrentFailure OverVoltage PowerMeterFailure PowerSwitchFailure ReaderFailure ResetFailure UnderVoltage WeakSignal"`
	Info            *string `json:"info,omitempty"`
	Status          string  `json:"status" validate:"required,oneof=Available Preparing Charging SuspendedEVSE SuspendedEV Finishing Reserved Unavailable Faulted"`
	Timestamp       *string `json:"timestamp,omitempty"`
	VendorID        *string `json:"vendorId,omitempty"`
	VendorErrorCode *string `json:"vendorErrorCode,omitempty"`
}

type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       *int         `json:"meterStop" validate:"required"`
	Timestamp       string       `json:"timestamp" validate:"required"`
	TransactionID   *int         `json:"transactionId" validate:"required"`
	Reason          *string      `json:"reason,omitempty" validate:"omitempty,oneof=EmergencyStop EVDisconnected HardReset Local Other PowerLoss Reboot Remote SoftReset UnlockCommand DeAuthorized"`
	TransactionData []MeterValue `json:"transactionData,omitempty" validate:"omitempty,dive"`
}

// Requests originated by the central system.

type CancelReservationRequest struct {
	ReservationID *int `json:"reservationId" validate:"required"`
}

type ChangeAvailabilityRequest struct {
	ConnectorID *int   `json:"connectorId" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=Inoperative Operative"`
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"required,max=500"`
}

type ClearCacheRequest struct{}

type ClearChargingProfileRequest struct {
	ID                     *int    `json:"id,omitempty"`
	ConnectorID            *int    `json:"connectorId,omitempty"`
	ChargingProfilePurpose *string `json:"chargingProfilePurpose,omitempty" validate:"omitempty,oneof=ChargePointMaxProfile TxDefaultProfile TxProfile"`
	StackLevel             *int    `json:"stackLevel,omitempty"`
}

type GetCompositeScheduleRequest struct {
	ConnectorID      *int    `json:"connectorId" validate:"required"`
	Duration         *int    `json:"duration" validate:"required"`
	ChargingRateUnit *string `json:"chargingRateUnit,omitempty" validate:"omitempty,oneof=A W"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type GetDiagnosticsRequest struct {
	Location      string  `json:"location" validate:"required"`
	Retries       *int    `json:"retries,omitempty"`
	RetryInterval *int    `json:"retryInterval,omitempty"`
	StartTime     *string `json:"startTime,omitempty"`
	StopTime      *string `json:"stopTime,omitempty"`
}

type GetLocalListVersionRequest struct{}

type RemoteStartTransactionRequest struct {
	ConnectorID     *int             `json:"connectorId,omitempty"`
	IdTag           string           `json:"idTag" validate:"required,max=20"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStopTransactionRequest struct {
	TransactionID *int `json:"transactionId" validate:"required"`
}

type ReserveNowRequest struct {
	ConnectorID   *int    `json:"connectorId" validate:"required"`
	ExpiryDate    string  `json:"expiryDate" validate:"required"`
	IdTag         string  `json:"idTag" validate:"required,max=20"`
	ParentIdTag   *string `json:"parentIdTag,omitempty"`
	ReservationID *int    `json:"reservationId" validate:"required"`
}

type ResetRequest struct {
	Type string `json:"type" validate:"required,oneof=Hard Soft"`
}

type SendLocalListRequest struct {
	ListVersion            *int                `json:"listVersion" validate:"required"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty" validate:"omitempty,dive"`
	UpdateType             string              `json:"updateType" validate:"required,oneof=Differential Full"`
}

type SetChargingProfileRequest struct {
	ConnectorID        *int            `json:"connectorId" validate:"required"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles" validate:"required"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required,oneof=BootNotification DiagnosticsStatusNotification FirmwareStatusNotification Heartbeat MeterValues StatusNotification"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type UnlockConnectorRequest struct {
	ConnectorID *int `json:"connectorId" validate:"required"`
}

type UpdateFirmwareRequest struct {
	Location      string `json:"location" validate:"required"`
	Retries       *int   `json:"retries,omitempty"`
	RetrieveDate  string `json:"retrieveDate" validate:"required"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
}

// Security extension requests (central system originated).

type CertificateSignedRequest struct {
	CertificateChain string `json:"certificateChain" validate:"required"`
}

type DeleteCertificateRequest struct {
	CertificateHashData CertificateHashData `json:"certificateHashData" validate:"required"`
}

type ExtendedTriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage" validate:"required,oneof=BootNotification LogStatusNotification FirmwareStatusNotification Heartbeat MeterValues SignChargePointCertificate StatusNotification"`
	ConnectorID      *int   `json:"connectorId,omitempty"`
}

type GetInstalledCertificateIdsRequest struct {
	CertificateType string `json:"certificateType" validate:"required,oneof=CentralSystemRootCertificate ManufacturerRootCertificate"`
}

type GetLogRequest struct {
	Log           LogParameters `json:"log" validate:"required"`
	LogType       string        `json:"logType" validate:"required,oneof=DiagnosticsLog SecurityLog"`
	RequestID     *int          `json:"requestId" validate:"required"`
	Retries       *int          `json:"retries,omitempty"`
	RetryInterval *int          `json:"retryInterval,omitempty"`
}

type InstallCertificateRequest struct {
	CertificateType string `json:"certificateType" validate:"required,oneof=CentralSystemRootCertificate ManufacturerRootCertificate"`
	Certificate     string `json:"certificate" validate:"required"`
}

type SignedUpdateFirmwareRequest struct {
	Retries       *int         `json:"retries,omitempty"`
	RetryInterval *int         `json:"retryInterval,omitempty"`
	RequestID     *int         `json:"requestId" validate:"required"`
	Firmware      FirmwareType `json:"firmware" validate:"required"`
}

// requestSchemas maps every known action to a fresh instance of its request
// struct. Extra wire fields are tolerated; required fields are enforced by
// the validator.
var requestSchemas = map[string]func() any{
	"Authorize":                        func() any { return new(AuthorizeRequest) },
	"BootNotification":                 func() any { return new(BootNotificationRequest) },
	"CancelReservation":                func() any { return new(CancelReservationRequest) },
	"CertificateSigned":                func() any { return new(CertificateSignedRequest) },
	"ChangeAvailability":               func() any { return new(ChangeAvailabilityRequest) },
	"ChangeConfiguration":              func() any { return new(ChangeConfigurationRequest) },
	"ClearCache":                       func() any { return new(ClearCacheRequest) },
	"ClearChargingProfile":             func() any { return new(ClearChargingProfileRequest) },
	"DataTransfer":                     func() any { return new(DataTransferRequest) },
	"DeleteCertificate":                func() any { return new(DeleteCertificateRequest) },
	"DiagnosticsStatusNotification":    func() any { return new(DiagnosticsStatusNotificationRequest) },
	"ExtendedTriggerMessage":           func() any { return new(ExtendedTriggerMessageRequest) },
	"FirmwareStatusNotification":       func() any { return new(FirmwareStatusNotificationRequest) },
	"GetCompositeSchedule":             func() any { return new(GetCompositeScheduleRequest) },
	"GetConfiguration":                 func() any { return new(GetConfigurationRequest) },
	"GetDiagnostics":                   func() any { return new(GetDiagnosticsRequest) },
	"GetInstalledCertificateIds":       func() any { return new(GetInstalledCertificateIdsRequest) },
	"GetLocalListVersion":              func() any { return new(GetLocalListVersionRequest) },
	"GetLog":                           func() any { return new(GetLogRequest) },
	"Heartbeat":                        func() any { return new(HeartbeatRequest) },
	"InstallCertificate":               func() any { return new(InstallCertificateRequest) },
	"LogStatusNotification":            func() any { return new(LogStatusNotificationRequest) },
	"MeterValues":                      func() any { return new(MeterValuesRequest) },
	"RemoteStartTransaction":           func() any { return new(RemoteStartTransactionRequest) },
	"RemoteStopTransaction":            func() any { return new(RemoteStopTransactionRequest) },
	"ReserveNow":                       func() any { return new(ReserveNowRequest) },
	"Reset":                            func() any { return new(ResetRequest) },
	"SecurityEventNotification":        func() any { return new(SecurityEventNotificationRequest) },
	"SendLocalList":                    func() any { return new(SendLocalListRequest) },
	"SetChargingProfile":               func() any { return new(SetChargingProfileRequest) },
	"SignCertificate":                  func() any { return new(SignCertificateRequest) },
	"SignedFirmwareStatusNotification": func() any { return new(SignedFirmwareStatusNotificationRequest) },
	"SignedUpdateFirmware":             func() any { return new(SignedUpdateFirmwareRequest) },
	"StartTransaction":                 func() any { return new(StartTransactionRequest) },
	"StatusNotification":               func() any { return new(StatusNotificationRequest) },
	"StopTransaction":                  func() any { return new(StopTransactionRequest) },
	"TriggerMessage":                   func() any { return new(TriggerMessageRequest) },
	"UnlockConnector":                  func() any { return new(UnlockConnectorRequest) },
	"UpdateFirmware":                   func() any { return new(UpdateFirmwareRequest) },
}

// centralActions is the closed set of actions the central system may send to
// a charge station.
var centralActions = map[string]bool{
	"CancelReservation":          true,
	"CertificateSigned":          true,
	"ChangeAvailability":         true,
	"ChangeConfiguration":        true,
	"ClearCache":                 true,
	"ClearChargingProfile":       true,
	"DataTransfer":               true,
	"DeleteCertificate":          true,
	"ExtendedTriggerMessage":     true,
	"GetCompositeSchedule":       true,
	"GetConfiguration":           true,
	"GetDiagnostics":             true,
	"GetInstalledCertificateIds": true,
	"GetLocalListVersion":        true,
	"GetLog":                     true,
	"InstallCertificate":         true,
	"RemoteStartTransaction":     true,
	"RemoteStopTransaction":      true,
	"ReserveNow":                 true,
	"Reset":                      true,
	"SendLocalList":              true,
	"SetChargingProfile":         true,
	"SignedUpdateFirmware":       true,
	"TriggerMessage":             true,
	"UnlockConnector":            true,
	"UpdateFirmware":             true,
}

// IsCentralAction reports whether the central system is allowed to originate
// a Call with the given action.
func IsCentralAction(action string) bool {
	return centralActions[action]
}

// KnownAction reports whether any request schema exists for the action.
func KnownAction(action string) bool {
	_, ok := requestSchemas[action]
	return ok
}

// ValidateCallPayload checks a Call payload against the action's request
// schema: the payload must be a JSON object deserializable into the schema
// struct with all required fields present. Extra fields are ignored.
func ValidateCallPayload(action string, payload json.RawMessage) error {
	mk, ok := requestSchemas[action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	req := mk()
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, req); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, action, err)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, action, err)
	}
	return nil
}
