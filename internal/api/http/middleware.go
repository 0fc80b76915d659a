package http

import (
	"context"
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-engine/internal/api/dto"
	"github.com/spec-kit/dispatch-engine/internal/observability"
	apperrors "github.com/spec-kit/dispatch-engine/pkg/util/errorutil"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// errorHandlingMiddleware renders every error and recovered panic as the
// standard error envelope, tagged with the request id when one is known.
func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.String("route", c.Route().Path),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			domainErr := toDomainError(err)
			metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

			body := dto.ErrorBody{
				Code:      domainErr.Code,
				Message:   domainErr.Message,
				Details:   domainErr.Details,
				RequestID: string(c.Response().Header.Peek("X-Request-ID")),
			}
			if domainErr.HTTPStatus >= 500 {
				logger.Error("request failed", zap.String("route", c.Route().Path), zap.Error(domainErr))
			}
			c.Status(domainErr.HTTPStatus)
			_ = c.JSON(dto.ErrorResponse{Error: body})
			err = nil
		}()
		return c.Next()
	}
}

// toDomainError keeps fiber's own errors (unknown route, bad method) at
// their status instead of reporting them as internal failures.
func toDomainError(err error) *apperrors.DomainError {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code := strings.ToUpper(strings.ReplaceAll(http.StatusText(fiberErr.Code), " ", "_"))
		return apperrors.NewDomainError(code, fiberErr.Message, fiberErr.Code, nil)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewDomainError("TIMEOUT", "request timed out", http.StatusGatewayTimeout, nil)
	}
	return apperrors.ToDomainError(err)
}
