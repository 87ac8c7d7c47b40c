package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/ocpp"
	"github.com/voltgrid/ocpp-csms/internal/router"
)

// operatorRouter is what an operator session needs from the router.
type operatorRouter interface {
	ConnectOperator(clientID string, link router.OperatorLink)
	DisconnectOperator(clientID string)
	OperatorToStation(clientID, serialID, action string, payload json.RawMessage) (string, error)
	SetDefaultResponse(serialID, action string, payload json.RawMessage) error
}

// LogManager is the slice of the log store operator sessions drive.
type LogManager interface {
	Extract(station, begin, end string) (string, error)
	Purge() error
}

// OperatorOptions tunes an operator session; zero values use the protocol
// constants.
type OperatorOptions struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
}

// OperatorSession drives one operator browser connection speaking JSON-RPC
// 2.0 over WebSocket. Station replies arrive asynchronously via Push.
type OperatorSession struct {
	clientID string
	conn     *websocket.Conn
	rt       operatorRouter
	logs     LogManager
	baseURL  string
	log      *zap.Logger

	heartbeatInterval time.Duration
	clientTimeout     time.Duration

	outbound   chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	lastSeen   atomic.Int64
	closeAfter atomic.Bool
}

// NewOperatorSession builds a session. baseURL is the externally reachable
// root of the HTTP server, used to address extracted log files.
func NewOperatorSession(clientID string, conn *websocket.Conn, rt operatorRouter, logs LogManager, baseURL string, log *zap.Logger, opts OperatorOptions) *OperatorSession {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = HeartbeatInterval
	}
	if opts.ClientTimeout <= 0 {
		opts.ClientTimeout = ClientTimeout
	}
	s := &OperatorSession{
		clientID:          clientID,
		conn:              conn,
		rt:                rt,
		logs:              logs,
		baseURL:           baseURL,
		log:               log.With(zap.String("client_id", clientID)),
		heartbeatInterval: opts.HeartbeatInterval,
		clientTimeout:     opts.ClientTimeout,
		outbound:          make(chan []byte, outboundBuffer),
		done:              make(chan struct{}),
	}
	s.touch()
	return s
}

// Run registers the session and blocks until the connection dies.
func (s *OperatorSession) Run() {
	s.rt.ConnectOperator(s.clientID, s)
	go s.writePump()
	s.readPump()
	s.rt.DisconnectOperator(s.clientID)
	s.shutdown()
}

// Push implements router.OperatorLink: asynchronous events are delivered as
// JSON-RPC responses under a freshly generated id.
func (s *OperatorSession) Push(event any) {
	s.enqueue(rpcResult(uuid.NewString(), event))
}

func (s *OperatorSession) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *OperatorSession) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

func (s *OperatorSession) silentFor() time.Duration {
	return time.Duration(time.Now().UnixNano() - s.lastSeen.Load())
}

func (s *OperatorSession) enqueue(msg []byte) {
	select {
	case s.outbound <- msg:
	case <-s.done:
	default:
		s.log.Error("outbound queue full, closing session")
		s.shutdown()
	}
}

func (s *OperatorSession) readPump() {
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug("read loop finished", zap.Error(err))
			return
		}
		s.touch()
		if msgType != websocket.TextMessage {
			continue
		}
		s.enqueue(s.handleRequest(data))
	}
}

func (s *OperatorSession) writePump() {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.outbound:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Error("write failed, closing session", zap.Error(err))
				s.shutdown()
				return
			}
			// A disconnect request closes the socket once its response
			// has been flushed.
			if s.closeAfter.Load() && len(s.outbound) == 0 {
				s.shutdown()
				return
			}
		case <-ticker.C:
			if s.silentFor() > s.clientTimeout {
				s.log.Warn("operator heartbeat missing, disconnecting")
				s.shutdown()
				return
			}
			_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		case <-s.done:
			return
		}
	}
}

// handleRequest processes one JSON-RPC request and returns the response to
// transmit.
func (s *OperatorSession) handleRequest(data []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return rpcFailure(nil, rpcParseError, "Parse error", err.Error())
	}
	if req.JSONRPC != jsonrpcVersion {
		return rpcFailure(rawID(req.ID), rpcInvalidRequest, "Invalid Request", "jsonrpc must be \"2.0\"")
	}

	id := rawID(req.ID)
	switch req.Method {
	case "connect":
		// Registration already happened at upgrade time; reconnecting the
		// same client id is a no-op.
		s.rt.ConnectOperator(s.clientID, s)
		return rpcResult(id, "connected to the ocpp server")

	case "disconnect":
		s.rt.DisconnectOperator(s.clientID)
		s.closeAfter.Store(true)
		return rpcResult(id, "disconnecting from the ocpp server")

	case "get_current_timestamp":
		return rpcResult(id, ocpp.CurrentTime(0))

	case "get_log":
		var p getLogParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.ChargerSN == "" || p.BeginTimestamp == "" {
			return rpcFailure(id, rpcInvalidParams, "Invalid params", "charger_sn and begin_timestamp are required")
		}
		end := p.EndTimestamp
		if end == "" {
			end = ocpp.CurrentTime(0)
		}
		filename, err := s.logs.Extract(p.ChargerSN, p.BeginTimestamp, end)
		if err != nil {
			return rpcFailure(id, rpcInternalError, "Internal error", err.Error())
		}
		return rpcResult(id, map[string]string{"address": s.baseURL + "/logs/" + filename})

	case "clear_logs":
		if err := s.logs.Purge(); err != nil {
			return rpcFailure(id, rpcInternalError, "Internal error", err.Error())
		}
		return rpcResult(id, "logs cleared")

	case "send_ocpp_call":
		var p sendCallParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Charger == "" || p.Action == "" {
			return rpcFailure(id, rpcInvalidParams, "Invalid params", "charger and action are required")
		}
		wire, err := s.rt.OperatorToStation(s.clientID, p.Charger, p.Action, p.Payload)
		if err != nil {
			return s.mapRouterError(id, err)
		}
		return rpcResult(id, wire)

	case "set_default_response":
		var p defaultResponseParams
		if err := json.Unmarshal(req.Params, &p); err != nil || p.Charger == "" || p.Action == "" {
			return rpcFailure(id, rpcInvalidParams, "Invalid params", "charger and action are required")
		}
		if err := s.rt.SetDefaultResponse(p.Charger, p.Action, p.Payload); err != nil {
			return s.mapRouterError(id, err)
		}
		return rpcResult(id, fmt.Sprintf("default %s response updated for %s", p.Action, p.Charger))

	default:
		return rpcFailure(id, rpcMethodNotFound, "Method not found", req.Method)
	}
}

func (s *OperatorSession) mapRouterError(id any, err error) []byte {
	switch {
	case errors.Is(err, router.ErrStationNotConnected),
		errors.Is(err, router.ErrActionNotAllowed),
		errors.Is(err, ocpp.ErrUnknownAction),
		errors.Is(err, ocpp.ErrSchemaViolation):
		return rpcFailure(id, rpcInvalidParams, "Invalid params", err.Error())
	default:
		return rpcFailure(id, rpcInternalError, "Internal error", err.Error())
	}
}

// rawID turns the raw request id token into a value the response can carry
// unchanged. Requests without an id get null back.
func rawID(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}
