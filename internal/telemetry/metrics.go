package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_connected_stations",
		Help: "Charge stations with a live WebSocket session",
	})

	ConnectedOperators = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_connected_operators",
		Help: "Operator browsers with a live WebSocket session",
	})

	PendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_pending_calls",
		Help: "Operator-issued Calls awaiting a station reply",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "OCPP frames processed, by action and direction",
	}, []string{"action", "direction"})

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_call_errors_total",
		Help: "CallError frames sent to charge stations, by error code",
	}, []string{"code"})

	DroppedRepliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_dropped_replies_total",
		Help: "Station replies dropped for lack of a pending correlation",
	})
)
