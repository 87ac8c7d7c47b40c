// Package ocppws is the charge-station listener: it upgrades
// `GET /ocpp/{serial_id}` requests into OCPP-J WebSocket sessions.
package ocppws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/auth"
	"github.com/voltgrid/ocpp-csms/internal/router"
	"github.com/voltgrid/ocpp-csms/internal/session"
)

// Options configures the listener.
type Options struct {
	// AuthPassword, when non-empty, enables HTTP Basic on upgrades.
	AuthPassword string
	// Subprotocols offered during negotiation; negotiation must succeed.
	Subprotocols []string
	// BootInterval seeds BootNotification responses, in seconds.
	BootInterval int
	// TimeOffset shifts reply timestamps.
	TimeOffset time.Duration
	// UseTLS loads cert.pem / key.pem next to the binary.
	UseTLS   bool
	CertFile string
	KeyFile  string
}

// Server accepts charge-station connections and hands them to sessions.
type Server struct {
	rt       *router.Router
	events   session.EventLog
	log      *zap.Logger
	opts     Options
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func NewServer(rt *router.Router, events session.EventLog, log *zap.Logger, opts Options) *Server {
	if len(opts.Subprotocols) == 0 {
		opts.Subprotocols = []string{"ocpp1.6"}
	}
	return &Server{
		rt:     rt,
		events: events,
		log:    log,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    opts.Subprotocols,
			// Charge stations are not browsers; origin is meaningless.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler exposes the routing mux, also used by tests via httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp/", s.handleUpgrade)
	return mux
}

// Start blocks serving the listener until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	var err error
	if s.opts.UseTLS {
		s.httpSrv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		err = s.httpSrv.ListenAndServeTLS(s.opts.CertFile, s.opts.KeyFile)
	} else {
		err = s.httpSrv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	serialID := strings.TrimPrefix(r.URL.Path, "/ocpp/")
	if serialID == "" || strings.Contains(serialID, "/") {
		http.Error(w, "charge station serial id missing", http.StatusNotFound)
		return
	}

	if err := auth.CheckStationBasic(r, serialID, s.opts.AuthPassword); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrMissingCredentials) {
			status = http.StatusBadRequest
		}
		s.log.Warn("charge station auth failed",
			zap.String("serial_id", serialID), zap.Error(err))
		http.Error(w, err.Error(), status)
		return
	}

	if !s.subprotocolOffered(r) {
		s.log.Warn("no acceptable websocket subprotocol offered",
			zap.String("serial_id", serialID),
			zap.Strings("offered", websocket.Subprotocols(r)))
		http.Error(w, fmt.Sprintf("one of subprotocols %v required", s.opts.Subprotocols),
			http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed",
			zap.String("serial_id", serialID), zap.Error(err))
		return
	}

	s.log.Info("charge station connected",
		zap.String("serial_id", serialID),
		zap.String("subprotocol", conn.Subprotocol()),
		zap.String("remote", conn.RemoteAddr().String()))

	sess := session.NewStationSession(serialID, conn, s.rt, s.events, s.log, session.StationOptions{
		BootInterval: s.opts.BootInterval,
		TimeOffset:   s.opts.TimeOffset,
	})
	sess.Run()
}

func (s *Server) subprotocolOffered(r *http.Request) bool {
	for _, offered := range websocket.Subprotocols(r) {
		for _, supported := range s.opts.Subprotocols {
			if offered == supported {
				return true
			}
		}
	}
	return false
}
