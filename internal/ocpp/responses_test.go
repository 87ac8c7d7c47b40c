package ocpp

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultResponsesEverythingAccepted(t *testing.T) {
	d := NewDefaultResponses()

	assert.Equal(t, "Accepted", d.Authorize().IdTagInfo.Status)
	assert.Equal(t, "Accepted", d.DataTransfer().Status)
	assert.Equal(t, "Accepted", d.SignCertificate().Status)
	assert.Equal(t, "Accepted", d.StartTransaction().IdTagInfo.Status)
	assert.Equal(t, PlaceholderTransactionID, d.StartTransaction().TransactionID)
	require.NotNil(t, d.StopTransaction().IdTagInfo)
	assert.Equal(t, "Accepted", d.StopTransaction().IdTagInfo.Status)
}

func TestApplyOverwritesOnlyPresentFields(t *testing.T) {
	d := NewDefaultResponses()

	d.Apply(DefaultResponsesUpdate{
		Authorize: &AuthorizeResponse{IdTagInfo: IdTagInfo{Status: "Blocked"}},
	})

	assert.Equal(t, "Blocked", d.Authorize().IdTagInfo.Status)
	// Untouched entries keep their previous value.
	assert.Equal(t, "Accepted", d.DataTransfer().Status)
	assert.Equal(t, PlaceholderTransactionID, d.StartTransaction().TransactionID)
}

func TestDefaultPayloadPerAction(t *testing.T) {
	d := NewDefaultResponses()

	payload, ok := d.Default("StartTransaction")
	require.True(t, ok)
	var resp StartTransactionResponse
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, PlaceholderTransactionID, resp.TransactionID)

	_, ok = d.Default("BootNotification")
	assert.False(t, ok)
}

func TestDecodeDefaultResponse(t *testing.T) {
	u, err := DecodeDefaultResponse("Authorize", json.RawMessage(`{"idTagInfo":{"status":"Invalid"}}`))
	require.NoError(t, err)
	require.NotNil(t, u.Authorize)
	assert.Equal(t, "Invalid", u.Authorize.IdTagInfo.Status)

	_, err = DecodeDefaultResponse("Authorize", json.RawMessage(`{"idTagInfo":{"status":"Sideways"}}`))
	assert.ErrorIs(t, err, ErrSchemaViolation)

	_, err = DecodeDefaultResponse("Reset", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestBootNotificationResult(t *testing.T) {
	resp := BootNotificationResult(30, 2*time.Hour)

	assert.Equal(t, 30, resp.Interval)
	assert.Equal(t, "Accepted", resp.Status)

	parsed, err := time.Parse(TimestampLayout, resp.CurrentTime)
	require.NoError(t, err)
	diff := time.Until(parsed)
	assert.InDelta(t, (2 * time.Hour).Seconds(), diff.Seconds(), 5)
}

func TestHeartbeatResultTimestampShape(t *testing.T) {
	resp := HeartbeatResult(0)
	_, err := time.Parse(TimestampLayout, resp.CurrentTime)
	assert.NoError(t, err)
}

func TestHasDefaultResponse(t *testing.T) {
	for _, action := range []string{"Authorize", "DataTransfer", "SignCertificate", "StartTransaction", "StopTransaction"} {
		assert.True(t, HasDefaultResponse(action), action)
	}
	assert.False(t, HasDefaultResponse("BootNotification"))
	assert.False(t, HasDefaultResponse("Heartbeat"))
}

func TestEmptyResultActionsAreStationNotifications(t *testing.T) {
	for action := range EmptyResultActions {
		assert.True(t, KnownAction(action), action)
		assert.False(t, HasDefaultResponse(action), action)
	}
}
