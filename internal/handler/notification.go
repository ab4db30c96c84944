package handler

import (
	"strconv"

	"marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type NotificationHandler struct {
	notificationService service.NotificationService
}

func NewNotificationHandler(notificationService service.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	notes, err := h.notificationService.List(c.Request().Context(), middleware.ActorFrom(c).ID, limit)
	if err != nil {
		return err
	}
	return ok(c, notes)
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	if err := h.notificationService.MarkRead(c.Request().Context(), middleware.ActorFrom(c).ID, c.Param("id")); err != nil {
		return err
	}
	return ok(c, nil)
}
