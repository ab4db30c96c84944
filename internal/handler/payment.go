package handler

import (
	"errors"
	"io"
	"net/http"

	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

const (
	signatureHeader = "x-paystack-signature"
	maxWebhookBody  = 1 << 20
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) Initiate(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.InitiatePaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.paymentService.Initiate(ctx, middleware.ActorFrom(c), &req)
	if err != nil {
		return err
	}

	return ok(c, result)
}

// Verify serves both the JSON call and the gateway's redirect, which carries
// the reference as a query parameter.
func (h *PaymentHandler) Verify(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.VerifyPaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Reference == "" {
		req.Reference = c.QueryParam("trxref")
	}

	result, err := h.paymentService.Verify(ctx, req.Reference)
	if errors.Is(err, service.ErrAlreadyProcessed) {
		return c.JSON(http.StatusOK, envelope{
			Success:          true,
			Data:             result,
			Message:          "payment was already verified",
			AlreadyProcessed: true,
		})
	}
	if err != nil {
		return err
	}

	return ok(c, result)
}

func (h *PaymentHandler) Webhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	if err := h.paymentService.HandleWebhook(ctx, c.Request().Header.Get(signatureHeader), body); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, envelope{Success: true})
}
