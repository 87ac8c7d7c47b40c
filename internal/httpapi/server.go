// Package httpapi is the operator-facing surface: login, station listing,
// the JSON-RPC WebSocket endpoint, log artifacts and metrics.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/auth"
	"github.com/voltgrid/ocpp-csms/internal/logstore"
	"github.com/voltgrid/ocpp-csms/internal/router"
)

const serviceName = "ocpp-csms"

// API wires the operator HTTP surface together.
type API struct {
	rt            *router.Router
	store         *logstore.Store
	sessions      *auth.Sessions
	baseURL       string
	secureCookies bool
	log           *zap.Logger
}

func New(rt *router.Router, store *logstore.Store, sessions *auth.Sessions, baseURL string, secureCookies bool, log *zap.Logger) *API {
	return &API{
		rt:            rt,
		store:         store,
		sessions:      sessions,
		baseURL:       baseURL,
		secureCookies: secureCookies,
		log:           log,
	}
}

// App builds the fiber application with all routes and middleware attached.
func (a *API) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(a.log),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, DELETE, OPTIONS",
		AllowCredentials: true,
		AllowOriginsFunc: func(origin string) bool { return true },
	}))

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := a.store.Healthy(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("log store not ready")
		}
		return c.SendString("Ready")
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// Extracted log artifacts.
	app.Static("/logs", a.store.Dir())

	api := app.Group("/api", CircuitBreaker(a.log))
	api.Post("/auth", a.handleLogin)
	api.Delete("/auth", a.handleLogout)

	protected := api.Group("", CookieAuth(a.sessions))
	protected.Get("/get-chargers", a.handleGetChargers)
	protected.Post("/post-request", a.handlePostRequest)

	protected.Use("/webclient-socket", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	protected.Get("/webclient-socket/:client_id", websocket.New(a.handleOperatorSocket))

	return app
}
