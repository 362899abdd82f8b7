package response

import (
	"errors"
	"fulfillment-service/app/domain"

	"github.com/gofiber/fiber/v2"
)

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Success(data any) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

func Error(err error) *Response {
	return &Response{
		Success: false,
		Error:   err.Error(),
	}
}

func FromError(err error) (int, *Response) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrInvalidRequest):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.StatusUnauthorized, Error(err)
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, Error(err)
	case errors.Is(err, domain.ErrBadRequest):
		return fiber.StatusBadRequest, Error(err)
	case errors.Is(err, domain.ErrAlreadyExists):
		return fiber.StatusConflict, Error(err)
	case errors.Is(err, domain.ErrReservationClosed):
		return fiber.StatusConflict, Error(err)
	case errors.Is(err, domain.ErrInsufficientStock):
		return fiber.StatusUnprocessableEntity, Error(err)
	case errors.Is(err, domain.ErrVersionMismatch), errors.Is(err, domain.ErrTransient):
		return fiber.StatusServiceUnavailable, Error(domain.ErrTransient)
	default:
		return fiber.StatusInternalServerError, Error(domain.ErrInternal)
	}
}
