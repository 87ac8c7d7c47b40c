package httpapi

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/auth"
	"github.com/voltgrid/ocpp-csms/internal/ocpp"
	"github.com/voltgrid/ocpp-csms/internal/router"
	"github.com/voltgrid/ocpp-csms/internal/session"
)

type loginRequest struct {
	LoginID string `json:"login_id"`
}

// handleLogin checks the allow-list and, on success, sets the session
// cookie. Denied logins are a normal response, not an HTTP error.
func (a *API) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.LoginID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "login_id is required")
	}

	if !a.sessions.Allowed(req.LoginID) {
		a.log.Warn("login denied", zap.String("login_id", req.LoginID))
		return c.JSON(fiber.Map{"allowed": false})
	}

	token, err := a.sessions.Issue(req.LoginID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Cookie(&fiber.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Expires:  time.Now().Add(auth.SessionTTL),
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
	return c.JSON(fiber.Map{"id": req.LoginID, "allowed": true})
}

func (a *API) handleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
	return c.JSON(fiber.Map{"logged_out": true})
}

func (a *API) handleGetChargers(c *fiber.Ctx) error {
	return c.JSON(a.rt.ListStations())
}

type postRequestBody struct {
	Charger string          `json:"charger"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// handlePostRequest fires a Call at a station without recording a
// correlation; the station's reply will be logged and dropped. The sent
// frame is echoed back.
func (a *API) handlePostRequest(c *fiber.Ctx) error {
	var req postRequestBody
	if err := c.BodyParser(&req); err != nil || req.Charger == "" || req.Action == "" {
		return fiber.NewError(fiber.StatusBadRequest, "charger and action are required")
	}

	wire, err := a.rt.CastToStation(req.Charger, req.Action, req.Payload)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"sent": wire})
	case errors.Is(err, router.ErrStationNotConnected):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, router.ErrActionNotAllowed),
		errors.Is(err, ocpp.ErrUnknownAction),
		errors.Is(err, ocpp.ErrSchemaViolation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

// handleOperatorSocket runs the JSON-RPC session for one operator browser.
func (a *API) handleOperatorSocket(conn *websocket.Conn) {
	clientID := conn.Params("client_id")
	sess := session.NewOperatorSession(clientID, conn, a.rt, a.store, a.baseURL, a.log, session.OperatorOptions{})
	sess.Run()
}
