package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// startLiveStation runs a station session over a real socket pair so the
// liveness ticker operates on actual traffic.
func startLiveStation(t *testing.T, opts StationOptions) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	rt := &fakeStationRouter{}
	events := &recordingEventLog{}
	logger := zaptest.NewLogger(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		s := NewStationSession("CP1", conn, rt, events, logger, opts)
		go s.Run()
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSilentStationIsTornDown(t *testing.T) {
	client := startLiveStation(t, StationOptions{
		HeartbeatInterval: 20 * time.Millisecond,
		ClientTimeout:     80 * time.Millisecond,
	})

	// Stay silent past the timeout; pings go unanswered because nothing
	// pumps the client side.
	time.Sleep(200 * time.Millisecond)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var err error
	for err == nil {
		_, _, err = client.ReadMessage()
	}
	assert.Error(t, err)
}

func TestResponsiveStationStaysAlive(t *testing.T) {
	client := startLiveStation(t, StationOptions{
		HeartbeatInterval: 20 * time.Millisecond,
		ClientTimeout:     120 * time.Millisecond,
	})

	// Pump the client side; the default ping handler answers with pongs,
	// which count as liveness.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	// Well past several timeout windows.
	select {
	case err := <-readErr:
		t.Fatalf("session died despite pong traffic: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
}
