package handler

import (
	"fulfillment-service/app/domain"
	"fulfillment-service/app/handler/api/response"
	"fulfillment-service/pkg/ctxutil"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type InventoryHandler struct {
	inventoryUsecase domain.InventoryUsecase
	sweeperUsecase   domain.SweeperUsecase
	validator        *validator.Validate
}

func NewInventoryHandler(inventoryUsecase domain.InventoryUsecase, sweeperUsecase domain.SweeperUsecase, validator *validator.Validate) *InventoryHandler {
	return &InventoryHandler{inventoryUsecase, sweeperUsecase, validator}
}

func (h *InventoryHandler) Create(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req domain.InventoryCreateRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Create", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Create", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	inventory, err := h.inventoryUsecase.InitInventory(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Create", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusCreated).JSON(response.Success(inventory))
}

func (h *InventoryHandler) GetByProductID(c *fiber.Ctx) error {
	ctx := c.UserContext()

	productID, err := productIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] GetByProductID", "parseInt:"+c.Params("product_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	inventory, err := h.inventoryUsecase.GetByProductID(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] GetByProductID", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(inventory))
}

// Reserve is the synchronous reservation path. A rejection (no stock, unknown product, released
// reservation) is an answer with reserved=false, not an error.
func (h *InventoryHandler) Reserve(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var req domain.ReserveRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Reserve", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Reserve", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	result, err := h.inventoryUsecase.Reserve(ctx, req)
	if domain.IsReservationRejection(err) {
		slog.InfoContext(ctx, "[inventoryHandler] Reserve", "rejected", err)
		result.Reserved = false
		return c.Status(fiber.StatusOK).JSON(response.Success(result))
	}
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Reserve", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	if result.Replayed {
		return c.Status(fiber.StatusOK).JSON(response.Success(result))
	}
	return c.Status(fiber.StatusCreated).JSON(response.Success(result))
}

func (h *InventoryHandler) ListReservations(c *fiber.Ctx) error {
	ctx := c.UserContext()

	orderID, err := orderIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] ListReservations", "orderID:"+c.Params("order_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	reservations, err := h.inventoryUsecase.ListReservationsByOrderID(ctx, orderID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] ListReservations", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	if reservations == nil {
		reservations = []domain.Reservation{}
	}
	return c.Status(fiber.StatusOK).JSON(response.Success(reservations))
}

func (h *InventoryHandler) Restock(c *fiber.Ctx) error {
	ctx := c.UserContext()

	productID, err := productIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Restock", "parseInt:"+c.Params("product_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.RestockRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Restock", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}
	if req.Actor == "" {
		req.Actor = ctxutil.GetActor(ctx)
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Restock", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	inventory, err := h.inventoryUsecase.Restock(ctx, productID, req)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Restock", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(inventory))
}

func (h *InventoryHandler) Adjust(c *fiber.Ctx) error {
	ctx := c.UserContext()

	productID, err := productIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Adjust", "parseInt:"+c.Params("product_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	var req domain.AdjustRequest
	if err := c.BodyParser(&req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Adjust", "bodyParser", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}
	if req.Actor == "" {
		req.Actor = ctxutil.GetActor(ctx)
	}

	if err := h.validator.Struct(req); err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Adjust", "validation", err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrValidation))
	}

	inventory, err := h.inventoryUsecase.Adjust(ctx, productID, req)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Adjust", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(inventory))
}

func (h *InventoryHandler) Reconcile(c *fiber.Ctx) error {
	ctx := c.UserContext()

	productID, err := productIDParam(c)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Reconcile", "parseInt:"+c.Params("product_id"), err)
		return c.Status(fiber.StatusBadRequest).JSON(response.Error(domain.ErrBadRequest))
	}

	report, err := h.inventoryUsecase.Reconcile(ctx, productID)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Reconcile", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(report))
}

func (h *InventoryHandler) Sweep(c *fiber.Ctx) error {
	ctx := c.UserContext()

	result, err := h.sweeperUsecase.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "[inventoryHandler] Sweep", "usecase", err)
		status, resp := response.FromError(err)
		return c.Status(status).JSON(resp)
	}

	return c.Status(fiber.StatusOK).JSON(response.Success(result))
}
