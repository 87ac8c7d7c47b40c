package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voltgrid/ocpp-csms/internal/ocpp"
	"github.com/voltgrid/ocpp-csms/internal/router"
)

type sentCall struct {
	clientID, serialID, action string
	payload                    json.RawMessage
}

type fakeOperatorRouter struct {
	connected    []string
	disconnected []string
	calls        []sentCall
	defaults     []sentCall
	sendErr      error
	defaultErr   error
}

func (f *fakeOperatorRouter) ConnectOperator(clientID string, _ router.OperatorLink) {
	f.connected = append(f.connected, clientID)
}

func (f *fakeOperatorRouter) DisconnectOperator(clientID string) {
	f.disconnected = append(f.disconnected, clientID)
}

func (f *fakeOperatorRouter) OperatorToStation(clientID, serialID, action string, payload json.RawMessage) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.calls = append(f.calls, sentCall{clientID, serialID, action, payload})
	return `[2,"uuid-1","` + action + `",{}]`, nil
}

func (f *fakeOperatorRouter) SetDefaultResponse(serialID, action string, payload json.RawMessage) error {
	if f.defaultErr != nil {
		return f.defaultErr
	}
	f.defaults = append(f.defaults, sentCall{"", serialID, action, payload})
	return nil
}

type fakeLogManager struct {
	extracted  []string
	extractErr error
	purged     int
	purgeErr   error
}

func (f *fakeLogManager) Extract(station, begin, end string) (string, error) {
	if f.extractErr != nil {
		return "", f.extractErr
	}
	f.extracted = append(f.extracted, fmt.Sprintf("%s %s %s", station, begin, end))
	return station + "_" + begin + ".log", nil
}

func (f *fakeLogManager) Purge() error {
	f.purged++
	return f.purgeErr
}

type respEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	} `json:"error"`
}

func newTestOperator(t *testing.T) (*OperatorSession, *fakeOperatorRouter, *fakeLogManager) {
	t.Helper()
	rt := &fakeOperatorRouter{}
	logs := &fakeLogManager{}
	s := NewOperatorSession("op-1", nil, rt, logs, "http://localhost:8080", zaptest.NewLogger(t), OperatorOptions{})
	return s, rt, logs
}

func (s *OperatorSession) request(t *testing.T, body string) respEnvelope {
	t.Helper()
	var resp respEnvelope
	require.NoError(t, json.Unmarshal(s.handleRequest([]byte(body)), &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func TestParseErrorGetsMinus32700(t *testing.T) {
	s, _, _ := newTestOperator(t)
	resp := s.request(t, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
}

func TestWrongVersionRejected(t *testing.T) {
	s, _, _ := newTestOperator(t)
	resp := s.request(t, `{"jsonrpc":"1.0","id":1,"method":"connect"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32600, resp.Error.Code)
}

func TestUnknownMethodGetsMinus32601(t *testing.T) {
	s, _, _ := newTestOperator(t)
	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"levitate"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func TestConnectIsIdempotent(t *testing.T) {
	s, rt, _ := newTestOperator(t)

	first := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"connect"}`)
	second := s.request(t, `{"jsonrpc":"2.0","id":2,"method":"connect"}`)

	assert.Nil(t, first.Error)
	assert.Nil(t, second.Error)
	assert.Equal(t, "connected to the ocpp server", first.Result)
	assert.Equal(t, []string{"op-1", "op-1"}, rt.connected)
}

func TestDisconnectUnregistersAndSchedulesClose(t *testing.T) {
	s, rt, _ := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"disconnect"}`)

	assert.Nil(t, resp.Error)
	assert.Equal(t, "disconnecting from the ocpp server", resp.Result)
	assert.Equal(t, []string{"op-1"}, rt.disconnected)
	assert.True(t, s.closeAfter.Load())
}

func TestGetCurrentTimestamp(t *testing.T) {
	s, _, _ := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"get_current_timestamp"}`)

	require.Nil(t, resp.Error)
	ts, ok := resp.Result.(string)
	require.True(t, ok)
	_, err := time.Parse(ocpp.TimestampLayout, ts)
	assert.NoError(t, err)
}

func TestGetLogReturnsArtifactAddress(t *testing.T) {
	s, _, logs := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"get_log","params":{"charger_sn":"CP1","begin_timestamp":"2024-01-01T00:00:00.000+00:00"}}`)

	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	address, _ := result["address"].(string)
	assert.Contains(t, address, "http://localhost:8080/logs/CP1_")
	// Missing end timestamp defaults to now.
	require.Len(t, logs.extracted, 1)
}

func TestGetLogMissingParams(t *testing.T) {
	s, _, _ := newTestOperator(t)
	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"get_log","params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestGetLogStoreFailure(t *testing.T) {
	s, _, logs := newTestOperator(t)
	logs.extractErr = errors.New("disk full")

	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"get_log","params":{"charger_sn":"CP1","begin_timestamp":"2024-01-01T00:00:00.000+00:00"}}`)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestClearLogs(t *testing.T) {
	s, _, logs := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":1,"method":"clear_logs"}`)

	assert.Nil(t, resp.Error)
	assert.Equal(t, 1, logs.purged)
}

func TestSendOcppCall(t *testing.T) {
	s, rt, _ := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":7,"method":"send_ocpp_call","params":{"charger":"CP1","action":"Reset","payload":{"type":"Hard"}}}`)

	require.Nil(t, resp.Error)
	require.Len(t, rt.calls, 1)
	assert.Equal(t, "op-1", rt.calls[0].clientID)
	assert.Equal(t, "CP1", rt.calls[0].serialID)
	assert.Equal(t, "Reset", rt.calls[0].action)
	// The sent wire frame comes back as the result.
	assert.Contains(t, resp.Result, "Reset")
}

func TestSendOcppCallRouterErrorsMapToInvalidParams(t *testing.T) {
	s, rt, _ := newTestOperator(t)

	for _, sendErr := range []error{
		router.ErrStationNotConnected,
		router.ErrActionNotAllowed,
		fmt.Errorf("%w: Reset: bad", ocpp.ErrSchemaViolation),
	} {
		rt.sendErr = sendErr
		resp := s.request(t, `{"jsonrpc":"2.0","id":7,"method":"send_ocpp_call","params":{"charger":"CP1","action":"Reset","payload":{}}}`)
		require.NotNil(t, resp.Error)
		assert.Equal(t, -32602, resp.Error.Code)
	}

	rt.sendErr = errors.New("socket exploded")
	resp := s.request(t, `{"jsonrpc":"2.0","id":7,"method":"send_ocpp_call","params":{"charger":"CP1","action":"Reset","payload":{}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32603, resp.Error.Code)
}

func TestSetDefaultResponse(t *testing.T) {
	s, rt, _ := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":9,"method":"set_default_response","params":{"charger":"CP1","action":"Authorize","payload":{"idTagInfo":{"status":"Blocked"}}}}`)

	require.Nil(t, resp.Error)
	require.Len(t, rt.defaults, 1)
	assert.Equal(t, "Authorize", rt.defaults[0].action)
}

func TestRequestIDEchoedBack(t *testing.T) {
	s, _, _ := newTestOperator(t)

	resp := s.request(t, `{"jsonrpc":"2.0","id":"my-id-1","method":"get_current_timestamp"}`)
	assert.Equal(t, "my-id-1", resp.ID)

	resp = s.request(t, `{"jsonrpc":"2.0","id":41,"method":"get_current_timestamp"}`)
	assert.Equal(t, float64(41), resp.ID)
}

func TestPushWrapsEventAsResponseWithFreshID(t *testing.T) {
	s, _, _ := newTestOperator(t)

	s.Push(router.StationReplyEvent{Charger: "CP1", Kind: "call_result", MessageID: "m", Frame: "[3,\"m\",{}]"})

	var resp respEnvelope
	select {
	case msg := <-s.outbound:
		require.NoError(t, json.Unmarshal(msg, &resp))
	default:
		t.Fatal("nothing enqueued")
	}
	assert.Nil(t, resp.Error)
	id, ok := resp.ID.(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CP1", result["charger"])
}
