package handler

import (
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type PayoutHandler struct {
	payoutService service.PayoutService
}

func NewPayoutHandler(payoutService service.PayoutService) *PayoutHandler {
	return &PayoutHandler{
		payoutService: payoutService,
	}
}

func (h *PayoutHandler) ListBanks(c echo.Context) error {
	banks, err := h.payoutService.ListBanks(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, banks)
}

func (h *PayoutHandler) GetAccount(c echo.Context) error {
	account, err := h.payoutService.GetAccount(c.Request().Context(), middleware.ActorFrom(c).ID)
	if err != nil {
		return err
	}
	return ok(c, account)
}

func (h *PayoutHandler) SaveAccount(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.SavePayoutAccountRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.payoutService.SaveAccount(ctx, middleware.ActorFrom(c).ID, &req)
	if err != nil {
		return err
	}

	return ok(c, result)
}

func (h *PayoutHandler) DeleteAccount(c echo.Context) error {
	if err := h.payoutService.DeleteAccount(c.Request().Context(), middleware.ActorFrom(c).ID); err != nil {
		return err
	}
	return ok(c, nil)
}
