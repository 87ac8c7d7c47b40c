package ocpp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// TimestampLayout is RFC3339 with millisecond precision and a numeric zone,
// matching what charge stations expect in currentTime fields.
const TimestampLayout = "2006-01-02T15:04:05.000-07:00"

// PlaceholderTransactionID seeds the default StartTransaction response until
// an operator overrides it.
const PlaceholderTransactionID = 1500100900

// Response payloads for calls answered by the central system.

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

type BootNotificationResponse struct {
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
	Status      string `json:"status" validate:"required,oneof=Accepted Pending Rejected"`
}

type DataTransferResponse struct {
	Data   *string `json:"data,omitempty"`
	Status string  `json:"status" validate:"required,oneof=Accepted Rejected UnknownMessageId UnknownVendorId"`
}

type HeartbeatResponse struct {
	CurrentTime string `json:"currentTime"`
}

type SignCertificateResponse struct {
	Status string `json:"status" validate:"required,oneof=Accepted Rejected"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionID int       `json:"transactionId"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type EmptyResponse struct{}

// CurrentTime renders now plus the configured offset in the wire layout.
func CurrentTime(offset time.Duration) string {
	return time.Now().UTC().Add(offset).Format(TimestampLayout)
}

// DefaultResponses holds the per-station canned replies for the five actions
// an operator can pre-configure. Reads come from the session's inbound
// dispatch; updates arrive from operator sessions through the router, so
// access is guarded.
type DefaultResponses struct {
	mu               sync.RWMutex
	authorize        AuthorizeResponse
	dataTransfer     DataTransferResponse
	signCertificate  SignCertificateResponse
	startTransaction StartTransactionResponse
	stopTransaction  StopTransactionResponse
}

// DefaultResponsesUpdate carries a partial overwrite; only non-nil fields are
// applied.
type DefaultResponsesUpdate struct {
	Authorize        *AuthorizeResponse
	DataTransfer     *DataTransferResponse
	SignCertificate  *SignCertificateResponse
	StartTransaction *StartTransactionResponse
	StopTransaction  *StopTransactionResponse
}

// NewDefaultResponses builds the initial table: everything Accepted, with the
// placeholder transaction id.
func NewDefaultResponses() *DefaultResponses {
	accepted := IdTagInfo{Status: "Accepted"}
	stopInfo := accepted
	return &DefaultResponses{
		authorize:        AuthorizeResponse{IdTagInfo: accepted},
		dataTransfer:     DataTransferResponse{Status: "Accepted"},
		signCertificate:  SignCertificateResponse{Status: "Accepted"},
		startTransaction: StartTransactionResponse{IdTagInfo: accepted, TransactionID: PlaceholderTransactionID},
		stopTransaction:  StopTransactionResponse{IdTagInfo: &stopInfo},
	}
}

// Apply overwrites the fields present in the update and leaves the rest.
func (d *DefaultResponses) Apply(u DefaultResponsesUpdate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.Authorize != nil {
		d.authorize = *u.Authorize
	}
	if u.DataTransfer != nil {
		d.dataTransfer = *u.DataTransfer
	}
	if u.SignCertificate != nil {
		d.signCertificate = *u.SignCertificate
	}
	if u.StartTransaction != nil {
		d.startTransaction = *u.StartTransaction
	}
	if u.StopTransaction != nil {
		d.stopTransaction = *u.StopTransaction
	}
}

func (d *DefaultResponses) Authorize() AuthorizeResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.authorize
}

func (d *DefaultResponses) DataTransfer() DataTransferResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dataTransfer
}

func (d *DefaultResponses) SignCertificate() SignCertificateResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.signCertificate
}

func (d *DefaultResponses) StartTransaction() StartTransactionResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTransaction
}

func (d *DefaultResponses) StopTransaction() StopTransactionResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stopTransaction
}

// Default returns the canned response payload for the given action, or false
// when the action has no configurable default.
func (d *DefaultResponses) Default(action string) (json.RawMessage, bool) {
	var v any
	switch action {
	case "Authorize":
		v = d.Authorize()
	case "DataTransfer":
		v = d.DataTransfer()
	case "SignCertificate":
		v = d.SignCertificate()
	case "StartTransaction":
		v = d.StartTransaction()
	case "StopTransaction":
		v = d.StopTransaction()
	default:
		return nil, false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// DecodeDefaultResponse parses an operator-supplied replacement payload for
// one of the five configurable actions into an update.
func DecodeDefaultResponse(action string, payload json.RawMessage) (DefaultResponsesUpdate, error) {
	var u DefaultResponsesUpdate
	var target any
	switch action {
	case "Authorize":
		r := new(AuthorizeResponse)
		u.Authorize, target = r, r
	case "DataTransfer":
		r := new(DataTransferResponse)
		u.DataTransfer, target = r, r
	case "SignCertificate":
		r := new(SignCertificateResponse)
		u.SignCertificate, target = r, r
	case "StartTransaction":
		r := new(StartTransactionResponse)
		u.StartTransaction, target = r, r
	case "StopTransaction":
		r := new(StopTransactionResponse)
		u.StopTransaction, target = r, r
	default:
		return u, fmt.Errorf("%w: no configurable default response for %s", ErrUnknownAction, action)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return DefaultResponsesUpdate{}, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, action, err)
	}
	if err := validate.Struct(target); err != nil {
		return DefaultResponsesUpdate{}, fmt.Errorf("%w: %s: %v", ErrSchemaViolation, action, err)
	}
	return u, nil
}

// HasDefaultResponse reports whether the action's reply comes from the
// configurable table.
func HasDefaultResponse(action string) bool {
	switch action {
	case "Authorize", "DataTransfer", "SignCertificate", "StartTransaction", "StopTransaction":
		return true
	}
	return false
}

// BootNotificationResult builds the canned BootNotification acknowledgement:
// current server time shifted by the configured offset, the configured
// heartbeat interval, status Accepted.
func BootNotificationResult(interval int, offset time.Duration) BootNotificationResponse {
	return BootNotificationResponse{
		CurrentTime: CurrentTime(offset),
		Interval:    interval,
		Status:      "Accepted",
	}
}

// HeartbeatResult builds the Heartbeat acknowledgement.
func HeartbeatResult(offset time.Duration) HeartbeatResponse {
	return HeartbeatResponse{CurrentTime: CurrentTime(offset)}
}

// EmptyResultActions are the notification actions acknowledged with an empty
// object payload.
var EmptyResultActions = map[string]bool{
	"DiagnosticsStatusNotification":    true,
	"FirmwareStatusNotification":       true,
	"LogStatusNotification":            true,
	"MeterValues":                      true,
	"SecurityEventNotification":        true,
	"SignedFirmwareStatusNotification": true,
	"StatusNotification":               true,
}
