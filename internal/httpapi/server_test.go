package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voltgrid/ocpp-csms/internal/auth"
	"github.com/voltgrid/ocpp-csms/internal/logstore"
	"github.com/voltgrid/ocpp-csms/internal/router"
)

func newTestAPI(t *testing.T) (*fiber.App, *router.Router, *auth.Sessions) {
	t.Helper()
	dir := t.TempDir()
	store, err := logstore.Open(filepath.Join(dir, "logs.db"), filepath.Join(dir, "artifacts"), zaptest.NewLogger(t))
	require.NoError(t, err)

	rt := router.New(store, zaptest.NewLogger(t))
	sessions := auth.NewSessions("test-secret", []string{"admin"})
	api := New(rt, store, sessions, "http://localhost:8080", false, zaptest.NewLogger(t))
	return api.App(), rt, sessions
}

func loginCookie(t *testing.T, sessions *auth.Sessions) *http.Cookie {
	t.Helper()
	token, err := sessions.Issue("admin")
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func TestLoginAllowedSetsCookie(t *testing.T) {
	app, _, _ := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/auth", strings.NewReader(`{"login_id":"admin"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "admin", body["id"])

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.NotEmpty(t, sessionCookie.Value)
}

func TestLoginDeniedIsNotAnError(t *testing.T) {
	app, _, _ := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/auth", strings.NewReader(`{"login_id":"intruder"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["allowed"])
	assert.Empty(t, resp.Cookies())
}

func TestLoginWithoutLoginID(t *testing.T) {
	app, _, _ := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/auth", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetChargersRequiresSession(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/get-chargers", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

type listedStation struct{}

func (listedStation) Deliver(router.MessageToChargeStation) {}
func (listedStation) Shutdown(string)                       {}

func TestGetChargersListsConnected(t *testing.T) {
	app, rt, sessions := newTestAPI(t)
	rt.ConnectStation("CP2", listedStation{})
	rt.ConnectStation("CP1", listedStation{})

	req := httptest.NewRequest("GET", "/api/get-chargers", nil)
	req.AddCookie(loginCookie(t, sessions))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `["CP1","CP2"]`, string(body))
}

func TestPostRequestToDisconnectedStation(t *testing.T) {
	app, _, sessions := newTestAPI(t)

	req := httptest.NewRequest("POST", "/api/post-request",
		strings.NewReader(`{"charger":"CP9","action":"Reset","payload":{"type":"Hard"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(loginCookie(t, sessions))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostRequestSendsAndEchoes(t *testing.T) {
	app, rt, sessions := newTestAPI(t)
	rt.ConnectStation("CP1", listedStation{})

	req := httptest.NewRequest("POST", "/api/post-request",
		strings.NewReader(`{"charger":"CP1","action":"Reset","payload":{"type":"Hard"}}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(loginCookie(t, sessions))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["sent"], `"Reset"`)
}

func TestPostRequestRejectsStationAction(t *testing.T) {
	app, rt, sessions := newTestAPI(t)
	rt.ConnectStation("CP1", listedStation{})

	req := httptest.NewRequest("POST", "/api/post-request",
		strings.NewReader(`{"charger":"CP1","action":"BootNotification","payload":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(loginCookie(t, sessions))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLogoutClearsCookie(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, err := app.Test(httptest.NewRequest("DELETE", "/api/auth", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleared *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == auth.CookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestHealthEndpoints(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/live", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "csms_connected_stations")
}

func TestWebclientSocketRequiresUpgrade(t *testing.T) {
	app, _, sessions := newTestAPI(t)

	req := httptest.NewRequest("GET", "/api/webclient-socket/op-1", nil)
	req.AddCookie(loginCookie(t, sessions))
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
