package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/voltgrid/ocpp-csms/internal/auth"
)

// ErrorHandler renders every fiber error as JSON and keeps the 5xx noise in
// the process log.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// CookieAuth rejects requests without a valid operator session cookie.
func CookieAuth(sessions *auth.Sessions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Cookies(auth.CookieName)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "login required")
		}
		loginID, err := sessions.Verify(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "session expired or invalid")
		}
		c.Locals("login_id", loginID)
		return c.Next()
	}
}

// CircuitBreaker sheds API load when handlers keep failing.
func CircuitBreaker(log *zap.Logger) fiber.Handler {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "operator-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return func(c *fiber.Ctx) error {
		var nextErr error
		_, cbErr := cb.Execute(func() (any, error) {
			nextErr = c.Next()
			if nextErr != nil {
				// Client errors must not trip the breaker.
				if fe, ok := nextErr.(*fiber.Error); ok && fe.Code < fiber.StatusInternalServerError {
					return nil, nil
				}
				return nil, nextErr
			}
			if c.Response().StatusCode() >= fiber.StatusInternalServerError {
				return nil, fiber.ErrInternalServerError
			}
			return nil, nil
		})
		if cbErr == gobreaker.ErrOpenState || cbErr == gobreaker.ErrTooManyRequests {
			return fiber.NewError(fiber.StatusServiceUnavailable, "service temporarily unavailable")
		}
		if nextErr != nil {
			return nextErr
		}
		return nil
	}
}
