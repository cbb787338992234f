package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"llamarag/model"
	"llamarag/types"
)

// NewErrorHandler renders every handler error as JSON and logs server-side failures.
func NewErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	return func(c *fiber.Ctx, err error) error {
		var valErr ValidationError
		if errors.As(err, &valErr) {
			return c.Status(valErr.Status).JSON(valErr)
		}

		apiErr := toError(err)
		if apiErr.Code >= fiber.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("code", apiErr.Code),
				zap.Error(err))
		} else {
			logger.Debug("request rejected",
				zap.String("path", c.Path()),
				zap.Int("code", apiErr.Code),
				zap.String("error", apiErr.Message))
		}
		return c.Status(apiErr.Code).JSON(apiErr)
	}
}

func toError(err error) Error {
	var (
		apiErr   Error
		fiberErr *fiber.Error
		upstream *model.APIError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &fiberErr):
		return NewError(fiberErr.Code, fiberErr.Message)
	case errors.As(err, &upstream):
		return NewError(fiber.StatusBadGateway, upstream.Error())
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrUnsupportedFile):
		return NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		return NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrResetDisabled):
		return NewError(fiber.StatusForbidden, err.Error())
	default:
		return NewError(fiber.StatusInternalServerError, err.Error())
	}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrOnlyText() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "Only .txt files are allowed",
	}
}
