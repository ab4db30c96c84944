package handler

import (
	"strconv"

	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	orderService       service.OrderService
	fulfillmentService service.FulfillmentService
}

func NewOrderHandler(orderService service.OrderService, fulfillmentService service.FulfillmentService) *OrderHandler {
	return &OrderHandler{
		orderService:       orderService,
		fulfillmentService: fulfillmentService,
	}
}

func (h *OrderHandler) ListMine(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	orders, err := h.orderService.ListMine(ctx, middleware.ActorFrom(c), limit)
	if err != nil {
		return err
	}

	return ok(c, orders)
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	order, err := h.orderService.Get(ctx, middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return err
	}

	return ok(c, order)
}

func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UpdateOrderStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := h.orderService.UpdateStatus(ctx, middleware.ActorFrom(c), c.Param("id"), &req)
	if err != nil {
		return err
	}

	return ok(c, order)
}

type fulfillRequest struct {
	DeliveryEmail string `json:"deliveryEmail"`
}

// Fulfill resends the purchase email for a paid digital order.
func (h *OrderHandler) Fulfill(c echo.Context) error {
	ctx := c.Request().Context()

	var req fulfillRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	order, err := h.fulfillmentService.FulfillDigital(ctx, c.Param("id"), req.DeliveryEmail)
	if err != nil {
		return err
	}

	return ok(c, order)
}
