package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid/v5"
)

func productIDParam(c *fiber.Ctx) (int64, error) {
	productID, err := strconv.ParseInt(c.Params("product_id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if productID <= 0 {
		return 0, strconv.ErrRange
	}
	return productID, nil
}

func orderIDParam(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.FromString(c.Params("order_id"))
}
