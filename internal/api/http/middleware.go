package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/spec-kit/reeltap/internal/observability"
	apperrors "github.com/spec-kit/reeltap/pkg/util"
)

// MiddlewareConfig tunes the global middleware stack.
type MiddlewareConfig struct {
	// Timeout bounds the request context; zero disables it.
	Timeout time.Duration
	// ExposeDetails adds the internal cause to error bodies. Never set in production.
	ExposeDetails bool
}

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
// The request logger wraps the error handler so it records the final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, cfg MiddlewareConfig) {
	app.Use(requestid.New())
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics, cfg.ExposeDetails))
	if cfg.Timeout > 0 {
		app.Use(requestTimeoutMiddleware(cfg.Timeout))
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics, exposeDetails bool) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err != nil {
				domainErr := toDomainError(err)
				metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)
				if domainErr.HTTPStatus >= 500 {
					logger.Error("request failed",
						zap.String("code", domainErr.Code),
						zap.String("path", c.Path()),
						zap.Error(domainErr))
				}
				c.Status(domainErr.HTTPStatus)
				_ = c.JSON(ErrorBody(domainErr, exposeDetails))
				err = nil
			}
		}()
		return c.Next()
	}
}

// ErrorBody renders the client-facing error document.
func ErrorBody(domainErr *apperrors.DomainError, exposeDetails bool) fiber.Map {
	body := fiber.Map{
		"error":   domainErr.Code,
		"message": domainErr.Message,
	}
	if len(domainErr.Details) > 0 {
		body["details"] = domainErr.Details
	}
	if exposeDetails && domainErr.Err != nil {
		body["detail"] = domainErr.Err.Error()
	}
	return body
}

// toDomainError also maps fiber's own errors, e.g. a route miss, by status.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return apperrors.NewDomainError(apperrors.CodeNotFound, fiberErr.Message, fiberErr.Code, nil)
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			return apperrors.NewDomainError(apperrors.CodeValidationFailed, fiberErr.Message, fiber.StatusBadRequest, nil)
		default:
			code := apperrors.CodeInternal
			if fiberErr.Code < 500 {
				code = strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_"))
			}
			return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
		}
	}
	return apperrors.ToDomainError(err)
}
