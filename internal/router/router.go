// Package router owns the registry of live charge-station and operator
// sessions and the correlation map tying outstanding Calls to the operators
// that issued them.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/ocpp"
	"github.com/voltgrid/ocpp-csms/internal/telemetry"
)

var (
	// ErrStationNotConnected marks sends to serial ids with no live session.
	ErrStationNotConnected = errors.New("charge station is not connected")
	// ErrActionNotAllowed marks actions outside the central-to-station set.
	ErrActionNotAllowed = errors.New("action cannot be sent to a charge station")
)

// StationLink is the router's view of a charge-station session.
type StationLink interface {
	// Deliver hands an envelope to the session's write path.
	Deliver(env MessageToChargeStation)
	// Shutdown closes the underlying connection. Used when a reconnect
	// displaces the session.
	Shutdown(reason string)
}

// OperatorLink is the router's view of an operator session. Push delivers an
// asynchronous event; the session wraps it in its own envelope.
type OperatorLink interface {
	Push(event any)
}

// MessageToChargeStation is the envelope delivered to a station session. At
// most one field is set: either a raw wire frame to transmit, or a
// default-response overwrite to apply.
type MessageToChargeStation struct {
	Frame    *string
	Defaults *ocpp.DefaultResponsesUpdate
}

// ReplyKind discriminates station replies.
type ReplyKind int

const (
	ReplyResult ReplyKind = iota
	ReplyError
)

// StationReply is a CallResult or CallError received from a station,
// forwarded to the router for correlation. MessageID is unquoted.
type StationReply struct {
	SerialID         string
	Kind             ReplyKind
	MessageID        string
	Payload          json.RawMessage
	ErrorCode        ocpp.ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

// Encode renders the reply back to its wire form.
func (r StationReply) Encode() string {
	if r.Kind == ReplyError {
		return ocpp.WrapCallError(r.MessageID, r.ErrorCode, r.ErrorDetails)
	}
	return ocpp.WrapCallResult(r.MessageID, r.Payload)
}

// StationReplyEvent is pushed to the operator that owns the correlation.
type StationReplyEvent struct {
	Charger   string `json:"charger"`
	Kind      string `json:"kind"`
	MessageID string `json:"message_id"`
	Frame     string `json:"frame"`
}

// CallIssuedEvent echoes a just-sent Call back to its issuing operator.
type CallIssuedEvent struct {
	Charger string `json:"charger"`
	Frame   string `json:"frame"`
}

// EventLog is the slice of the log store the router needs.
type EventLog interface {
	Append(station, level, message string)
}

// Router holds the three registries behind one mutex: connected stations by
// serial id, connected operators by client id, and pending Call correlations
// (message id to issuing operator).
type Router struct {
	mu        sync.RWMutex
	stations  map[string]StationLink
	operators map[string]OperatorLink
	pending   map[string]string

	events EventLog
	log    *zap.Logger
}

func New(events EventLog, log *zap.Logger) *Router {
	return &Router{
		stations:  make(map[string]StationLink),
		operators: make(map[string]OperatorLink),
		pending:   make(map[string]string),
		events:    events,
		log:       log,
	}
}

// ConnectStation registers a station session under its serial id. A session
// already registered under the same id is displaced and closed; the new
// session is reachable immediately.
func (r *Router) ConnectStation(serialID string, link StationLink) {
	r.mu.Lock()
	old := r.stations[serialID]
	r.stations[serialID] = link
	r.mu.Unlock()

	if old != nil {
		r.log.Warn("displacing charge station session", zap.String("serial_id", serialID))
		old.Shutdown("replaced by a new connection with the same serial id")
	} else {
		telemetry.ConnectedStations.Inc()
	}
	r.events.Append(serialID, "info", fmt.Sprintf("charge station %s connected", serialID))
}

// DisconnectStation removes the registration, but only if it still belongs
// to the given session; a displaced session's teardown must not evict its
// replacement.
func (r *Router) DisconnectStation(serialID string, link StationLink) {
	r.mu.Lock()
	current, ok := r.stations[serialID]
	if ok && current == link {
		delete(r.stations, serialID)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		telemetry.ConnectedStations.Dec()
		r.events.Append(serialID, "info", fmt.Sprintf("charge station %s disconnected", serialID))
	}
}

// ConnectOperator registers an operator session. Re-registering the same
// client id replaces the link without touching its pending entries.
func (r *Router) ConnectOperator(clientID string, link OperatorLink) {
	r.mu.Lock()
	_, existed := r.operators[clientID]
	r.operators[clientID] = link
	r.mu.Unlock()

	if !existed {
		telemetry.ConnectedOperators.Inc()
	}
	r.log.Info("operator connected", zap.String("client_id", clientID))
}

// DisconnectOperator removes the operator and sweeps every pending entry it
// owns, so late station replies for those calls are dropped.
func (r *Router) DisconnectOperator(clientID string) {
	r.mu.Lock()
	_, existed := r.operators[clientID]
	delete(r.operators, clientID)
	swept := 0
	for id, owner := range r.pending {
		if owner == clientID {
			delete(r.pending, id)
			swept++
		}
	}
	r.mu.Unlock()

	if existed {
		telemetry.ConnectedOperators.Dec()
	}
	if swept > 0 {
		telemetry.PendingCalls.Sub(float64(swept))
	}
	r.log.Info("operator disconnected",
		zap.String("client_id", clientID),
		zap.Int("pending_swept", swept))
}

// ListStations returns the connected serial ids, sorted.
func (r *Router) ListStations() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.stations))
	for id := range r.stations {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// StationConnected reports whether a serial id has a live session.
func (r *Router) StationConnected(serialID string) bool {
	r.mu.RLock()
	_, ok := r.stations[serialID]
	r.mu.RUnlock()
	return ok
}

// OperatorToStation validates and sends an operator-originated Call: a fresh
// uuid becomes the MessageId, the correlation is recorded against the
// issuing operator, and the wire frame is echoed back to it.
func (r *Router) OperatorToStation(clientID, serialID, action string, payload json.RawMessage) (string, error) {
	wire, err := r.castLocked(clientID, serialID, action, payload, true)
	if err != nil {
		return "", err
	}
	return wire, nil
}

// CastToStation sends a Call without recording a correlation; any station
// reply will be logged and dropped. Backs the legacy REST request endpoint.
func (r *Router) CastToStation(serialID, action string, payload json.RawMessage) (string, error) {
	return r.castLocked("", serialID, action, payload, false)
}

func (r *Router) castLocked(clientID, serialID, action string, payload json.RawMessage, correlate bool) (string, error) {
	if !ocpp.IsCentralAction(action) {
		return "", fmt.Errorf("%w: %s", ErrActionNotAllowed, action)
	}
	if err := ocpp.ValidateCallPayload(action, payload); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	wire := ocpp.WrapCall(messageID, action, payload)

	r.mu.Lock()
	station, ok := r.stations[serialID]
	if !ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrStationNotConnected, serialID)
	}
	var operator OperatorLink
	if correlate {
		r.pending[messageID] = clientID
		operator = r.operators[clientID]
	}
	r.mu.Unlock()

	if correlate {
		telemetry.PendingCalls.Inc()
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "to_station").Inc()

	station.Deliver(MessageToChargeStation{Frame: &wire})
	if operator != nil {
		operator.Push(CallIssuedEvent{Charger: serialID, Frame: wire})
	}
	return wire, nil
}

// SetDefaultResponse validates an operator-supplied canned response and
// delivers the overwrite to the station session.
func (r *Router) SetDefaultResponse(serialID, action string, payload json.RawMessage) error {
	update, err := ocpp.DecodeDefaultResponse(action, payload)
	if err != nil {
		return err
	}

	r.mu.RLock()
	station, ok := r.stations[serialID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotConnected, serialID)
	}

	station.Deliver(MessageToChargeStation{Defaults: &update})
	r.events.Append(serialID, "info",
		fmt.Sprintf("default %s response overwritten by operator", action))
	return nil
}

// StationToOperator routes a station reply to the operator that issued the
// matching Call. Replies with no pending correlation are logged and dropped;
// the correlation is consumed either way it resolves.
func (r *Router) StationToOperator(reply StationReply) {
	r.mu.Lock()
	clientID, ok := r.pending[reply.MessageID]
	if ok {
		delete(r.pending, reply.MessageID)
	}
	var operator OperatorLink
	if ok {
		operator = r.operators[clientID]
	}
	r.mu.Unlock()

	if !ok {
		telemetry.DroppedRepliesTotal.Inc()
		r.events.Append(reply.SerialID, "warn",
			fmt.Sprintf("dropping reply with unknown message id %s: %s", reply.MessageID, reply.Encode()))
		return
	}

	telemetry.PendingCalls.Dec()

	kind := "call_result"
	if reply.Kind == ReplyError {
		kind = "call_error"
	}
	if operator == nil {
		r.log.Warn("operator gone before reply delivery",
			zap.String("client_id", clientID),
			zap.String("message_id", reply.MessageID))
		return
	}
	operator.Push(StationReplyEvent{
		Charger:   reply.SerialID,
		Kind:      kind,
		MessageID: reply.MessageID,
		Frame:     reply.Encode(),
	})
}
