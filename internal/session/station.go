// Package session implements the two WebSocket session kinds: charge
// stations speaking OCPP-J and operator browsers speaking JSON-RPC.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/ocpp"
	"github.com/voltgrid/ocpp-csms/internal/router"
	"github.com/voltgrid/ocpp-csms/internal/telemetry"
)

const (
	// HeartbeatInterval is the ping cadence for liveness probing.
	HeartbeatInterval = 60 * time.Second
	// ClientTimeout is how long a peer may stay silent before its session
	// is torn down.
	ClientTimeout = 600 * time.Second

	writeWait      = 10 * time.Second
	outboundBuffer = 64
)

// EventLog is the slice of the log store sessions write wire events to.
type EventLog interface {
	Append(station, level, message string)
}

// stationRouter is what a station session needs from the router.
type stationRouter interface {
	ConnectStation(serialID string, link router.StationLink)
	DisconnectStation(serialID string, link router.StationLink)
	StationToOperator(reply router.StationReply)
}

// StationOptions tunes a station session. Zero values fall back to the
// protocol constants; tests shrink the liveness windows.
type StationOptions struct {
	BootInterval      int
	TimeOffset        time.Duration
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
}

// StationSession drives one charge-station WebSocket connection: a read pump
// dispatching inbound OCPP-J frames, a write pump with a liveness ticker,
// and the per-station default-response table.
type StationSession struct {
	serialID string
	conn     *websocket.Conn
	rt       stationRouter
	events   EventLog
	defaults *ocpp.DefaultResponses
	log      *zap.Logger

	bootInterval      int
	timeOffset        time.Duration
	heartbeatInterval time.Duration
	clientTimeout     time.Duration

	outbound  chan string
	done      chan struct{}
	closeOnce sync.Once
	lastSeen  atomic.Int64
}

func NewStationSession(serialID string, conn *websocket.Conn, rt stationRouter, events EventLog, log *zap.Logger, opts StationOptions) *StationSession {
	if opts.BootInterval <= 0 {
		opts.BootInterval = int(HeartbeatInterval / time.Second)
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = HeartbeatInterval
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = ClientTimeout
	}
	s := &StationSession{
		serialID:          serialID,
		conn:              conn,
		rt:                rt,
		events:            events,
		defaults:          ocpp.NewDefaultResponses(),
		log:               log.With(zap.String("serial_id", serialID)),
		bootInterval:      opts.BootInterval,
		timeOffset:        opts.TimeOffset,
		heartbeatInterval: opts.HeartbeatInterval,
		clientTimeout:     opts.ClientTimeout,
		outbound:          make(chan string, outboundBuffer),
		done:              make(chan struct{}),
	}
	s.touch()
	return s
}

// Run registers the session with the router and blocks until the connection
// dies. Router state is always cleaned up on the way out.
func (s *StationSession) Run() {
	s.rt.ConnectStation(s.serialID, s)
	go s.writePump()
	s.readPump()
	s.rt.DisconnectStation(s.serialID, s)
	s.Shutdown("connection closed")
}

// Deliver implements router.StationLink.
func (s *StationSession) Deliver(env router.MessageToChargeStation) {
	if env.Defaults != nil {
		s.defaults.Apply(*env.Defaults)
		s.log.Info("default responses overwritten")
	}
	if env.Frame != nil {
		s.send(*env.Frame, "info")
	}
}

// Shutdown implements router.StationLink.
func (s *StationSession) Shutdown(reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
}

func (s *StationSession) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *StationSession) silentFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - s.lastSeen.Load())
}

func (s *StationSession) readPump() {
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})
	s.conn.SetPingHandler(func(appData string) error {
		s.touch()
		return s.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("read loop finished", zap.Error(err))
			return
		}
		s.touch()
		switch msgType {
		case websocket.TextMessage:
			s.handleFrame(data)
		case websocket.BinaryMessage:
			s.events.Append(s.serialID, "warn", "binary frame received, OCPP-J is text only")
		}
	}
}

func (s *StationSession) writePump() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case wire := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(wire)); err != nil {
				s.log.Error("write failed, closing session", zap.Error(err))
				s.Shutdown("write failure")
				return
			}
		case <-ticker.C:
			if s.silentFor() > s.clientTimeout {
				s.events.Append(s.serialID, "error",
					fmt.Sprintf("charge station %s heartbeat missing, disconnecting", s.serialID))
				s.Shutdown("heartbeat timeout")
				return
			}
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		case <-s.done:
			return
		}
	}
}

// send enqueues a wire frame and records it in the event log at the given
// level. A full queue means the peer stopped draining; the session dies.
func (s *StationSession) send(wire, level string) {
	s.events.Append(s.serialID, level, "sending: "+wire)
	select {
	case s.outbound <- wire:
	case <-s.done:
	default:
		s.log.Error("outbound queue full, closing session")
		s.Shutdown("outbound queue overflow")
	}
}

// handleFrame dispatches one inbound text frame.
func (s *StationSession) handleFrame(data []byte) {
	s.events.Append(s.serialID, "info", "received: "+string(data))

	frame, err := ocpp.Decode(data)
	if err != nil {
		s.sendCallError(ocpp.BestEffortMessageID(data), ocpp.FormatViolation, err.Error())
		return
	}

	switch frame.Type {
	case ocpp.CallMessage:
		telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "from_station").Inc()
		s.respondToCall(frame)
	case ocpp.CallResultMessage:
		s.rt.StationToOperator(router.StationReply{
			SerialID:  s.serialID,
			Kind:      router.ReplyResult,
			MessageID: ocpp.UnquoteID(frame.MessageID),
			Payload:   frame.Payload,
		})
	case ocpp.CallErrorMessage:
		s.rt.StationToOperator(router.StationReply{
			SerialID:         s.serialID,
			Kind:             router.ReplyError,
			MessageID:        ocpp.UnquoteID(frame.MessageID),
			ErrorCode:        frame.ErrorCode,
			ErrorDescription: frame.ErrorDescription,
			ErrorDetails:     frame.ErrorDetails,
		})
	}
}

// respondToCall answers a station-originated Call: canned defaults for the
// five configurable actions, synthesized payloads for BootNotification and
// Heartbeat, empty acknowledgements for the notification set, NotImplemented
// for anything else.
func (s *StationSession) respondToCall(frame *ocpp.Frame) {
	action := frame.Action

	if ocpp.HasDefaultResponse(action) {
		if err := ocpp.ValidateCallPayload(action, frame.Payload); err != nil {
			s.sendCallError(frame.MessageID, ocpp.FormatViolation, err.Error())
			return
		}
		payload, _ := s.defaults.Default(action)
		s.send(ocpp.WrapCallResult(frame.MessageID, payload), "info")
		return
	}

	switch {
	case action == "BootNotification":
		if err := ocpp.ValidateCallPayload(action, frame.Payload); err != nil {
			s.sendCallError(frame.MessageID, ocpp.FormatViolation, err.Error())
			return
		}
		resp, _ := json.Marshal(ocpp.BootNotificationResult(s.bootInterval, s.timeOffset))
		s.send(ocpp.WrapCallResult(frame.MessageID, resp), "info")
	case action == "Heartbeat":
		resp, _ := json.Marshal(ocpp.HeartbeatResult(s.timeOffset))
		s.send(ocpp.WrapCallResult(frame.MessageID, resp), "info")
	case ocpp.EmptyResultActions[action]:
		if err := ocpp.ValidateCallPayload(action, frame.Payload); err != nil {
			s.sendCallError(frame.MessageID, ocpp.FormatViolation, err.Error())
			return
		}
		s.send(ocpp.WrapCallResult(frame.MessageID, nil), "info")
	default:
		s.sendCallError(frame.MessageID, ocpp.NotImplemented,
			fmt.Sprintf("action %s is not handled by this central system", action))
	}
}

func (s *StationSession) sendCallError(messageID string, code ocpp.ErrorCode, detail string) {
	telemetry.CallErrorsTotal.WithLabelValues(string(code)).Inc()
	s.send(ocpp.WrapCallError(messageID, code, ocpp.ErrorDetailsText(detail)), "error")
}
