package handler

import (
	"net/http"

	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type SettlementHandler struct {
	settlementService service.SettlementService
}

func NewSettlementHandler(settlementService service.SettlementService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
	}
}

func (h *SettlementHandler) Process(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SettlementRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orderId is required")
	}

	result, err := h.settlementService.Process(ctx, req.OrderID)
	if err != nil {
		return err
	}

	return ok(c, result)
}
