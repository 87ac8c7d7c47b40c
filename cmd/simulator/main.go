// Command simulator emulates an OCPP 1.6 charge point for exercising the
// central system: it boots, heartbeats, answers server Calls and lets a
// console user fire station-side actions.
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/ocpp"
)

type simulator struct {
	conn     *websocket.Conn
	serialID string
	log      *zap.SugaredLogger
	outbound chan string
}

func main() {
	var (
		serverURL = flag.String("url", "ws://localhost:5000/ocpp", "central system base URL")
		serialID  = flag.String("serial", "CP001", "charge point serial id")
		password  = flag.String("password", "", "basic auth password, empty disables auth")
		interval  = flag.Duration("heartbeat", 60*time.Second, "heartbeat cadence")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()
	log := logger.Sugar()

	header := http.Header{}
	if *password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(*serialID + ":" + *password))
		header.Set("Authorization", "Basic "+creds)
	}
	dialer := websocket.Dialer{Subprotocols: []string{"ocpp1.6"}}
	conn, _, err := dialer.Dial(*serverURL+"/"+*serialID, header)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	sim := &simulator{
		conn:     conn,
		serialID: *serialID,
		log:      log,
		outbound: make(chan string, 16),
	}

	go sim.writeLoop()
	go sim.readLoop()

	sim.call("BootNotification", map[string]any{
		"chargePointVendor": "VoltGrid",
		"chargePointModel":  "SimCP-1",
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for range ticker.C {
			sim.call("Heartbeat", map[string]any{})
		}
	}()

	sim.console()
}

func (s *simulator) call(action string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Errorf("marshal %s: %v", action, err)
		return
	}
	s.outbound <- ocpp.WrapCall(uuid.NewString(), action, body)
}

func (s *simulator) writeLoop() {
	for wire := range s.outbound {
		s.log.Infof(">> %s", wire)
		if err := s.conn.WriteMessage(websocket.TextMessage, []byte(wire)); err != nil {
			s.log.Fatalf("write failed: %v", err)
		}
	}
}

func (s *simulator) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Fatalf("connection closed: %v", err)
		}
		s.log.Infof("<< %s", data)

		frame, err := ocpp.Decode(data)
		if err != nil || frame.Type != ocpp.CallMessage {
			continue
		}
		s.outbound <- ocpp.WrapCallResult(frame.MessageID, serverCallResponse(frame.Action))
	}
}

// serverCallResponse fabricates an acknowledgement for a server-originated
// Call. Everything is accepted; queries come back empty.
func serverCallResponse(action string) json.RawMessage {
	switch action {
	case "GetConfiguration":
		return json.RawMessage(`{"configurationKey":[]}`)
	case "GetLocalListVersion":
		return json.RawMessage(`{"listVersion":0}`)
	case "ClearCache", "ClearChargingProfile", "CancelReservation", "ChangeAvailability",
		"ChangeConfiguration", "RemoteStartTransaction", "RemoteStopTransaction",
		"ReserveNow", "Reset", "SendLocalList", "SetChargingProfile", "TriggerMessage",
		"UnlockConnector", "DataTransfer":
		return json.RawMessage(`{"status":"Accepted"}`)
	default:
		return json.RawMessage(`{}`)
	}
}

func (s *simulator) console() {
	fmt.Println("commands: authorize <idTag> | start <idTag> | stop <txId> | status <connector> <status> | heartbeat | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "authorize":
			if len(fields) < 2 {
				fmt.Println("usage: authorize <idTag>")
				continue
			}
			s.call("Authorize", map[string]any{"idTag": fields[1]})
		case "start":
			if len(fields) < 2 {
				fmt.Println("usage: start <idTag>")
				continue
			}
			s.call("StartTransaction", map[string]any{
				"connectorId": 1,
				"idTag":       fields[1],
				"meterStart":  0,
				"timestamp":   time.Now().UTC().Format(ocpp.TimestampLayout),
			})
		case "stop":
			if len(fields) < 2 {
				fmt.Println("usage: stop <transactionId>")
				continue
			}
			var txID int
			fmt.Sscanf(fields[1], "%d", &txID)
			s.call("StopTransaction", map[string]any{
				"meterStop":     100,
				"timestamp":     time.Now().UTC().Format(ocpp.TimestampLayout),
				"transactionId": txID,
			})
		case "status":
			if len(fields) < 3 {
				fmt.Println("usage: status <connector> <status>")
				continue
			}
			var connector int
			fmt.Sscanf(fields[1], "%d", &connector)
			s.call("StatusNotification", map[string]any{
				"connectorId": connector,
				"errorCode":   "NoError",
				"status":      fields[2],
			})
		case "heartbeat":
			s.call("Heartbeat", map[string]any{})
		case "quit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}
