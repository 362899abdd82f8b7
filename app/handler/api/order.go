package handler

import (
	"fulfillment-service/app/domain"
	"fulfillment-service/app/handler/api/response"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	orderUsecase domain.OrderUsecase
	validator    *validator.Validate
}

func NewOrderHandler(orderUsecase domain.OrderUsecase, validator *validator.Validate) *OrderHandler {
	return &OrderHandler{orderUsecase, validator}
}

func (h *OrderHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req domain.OrderCreateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(ctx, "[orderHandler] Create", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(ctx, "[orderHandler] Create", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	order, err := h.orderUsecase.CreateOrder(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "[orderHandler] Create", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(response.Success(order))
}

func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	orderID, err := orderIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[orderHandler] GetByID", "orderID:"+c.Params("order_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	order, err := h.orderUsecase.GetOrder(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[orderHandler] GetByID", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(order))
}

// Cancel only queues the cancellation; the order changes once the event is consumed.
func (h *OrderHandler) Cancel(c *fiber.Ctx) error {
	ctx := c.UserContext()

	orderID, err := orderIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[orderHandler] Cancel", "orderID:"+c.Params("order_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.orderUsecase.RequestCancel(ctx, orderID); err != nil {
		slog.ErrorContext(ctx, "[orderHandler] Cancel", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusAccepted).JSON(response.Success(nil))
}
