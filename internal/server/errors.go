package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

var errorMappers = []goerrors.ErrorMapper{goerrors.MapHTTPErrors}

// errorHandler writes every handler error as a go-errors response body.
func errorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		gerr := toError(err).Clone()
		status := statusOf(gerr)

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			gerr.Source = nil
		}

		return c.Status(status).JSON(gerr.ToErrorResponse(false, nil))
	}
}

func toError(err error) *goerrors.Error {
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return goerrors.New(ferr.Message, goerrors.HTTPStatusToCategory(ferr.Code)).
			WithCode(ferr.Code).
			WithTextCode(goerrors.HTTPStatusToTextCode(ferr.Code))
	}
	return goerrors.MapToError(err, errorMappers)
}

func statusOf(err *goerrors.Error) int {
	if err.Code >= 400 && err.Code <= 599 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(goerrors.HTTPStatusToTextCode(http.StatusBadRequest))
}

func notFound(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(goerrors.HTTPStatusToTextCode(http.StatusNotFound))
}
