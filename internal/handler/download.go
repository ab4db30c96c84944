package handler

import (
	"mime"
	"net/http"

	"marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
)

type DownloadHandler struct {
	downloadService service.DownloadService
}

func NewDownloadHandler(downloadService service.DownloadService) *DownloadHandler {
	return &DownloadHandler{
		downloadService: downloadService,
	}
}

type issueDownloadRequest struct {
	OrderID string `json:"orderId"`
}

func (h *DownloadHandler) Issue(c echo.Context) error {
	ctx := c.Request().Context()

	var req issueDownloadRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orderId is required")
	}

	ticket, err := h.downloadService.Issue(ctx, middleware.ActorFrom(c).ID, req.OrderID)
	if err != nil {
		return err
	}

	return ok(c, ticket)
}

func (h *DownloadHandler) Redeem(c echo.Context) error {
	ctx := c.Request().Context()

	file, err := h.downloadService.Redeem(ctx, middleware.ActorFrom(c).ID, c.Param("token"))
	if err != nil {
		return err
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename})
	if disposition == "" {
		disposition = "attachment"
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, disposition)
	header.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	header.Set("Pragma", "no-cache")
	header.Set("Expires", "0")
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")

	return c.Blob(http.StatusOK, file.ContentType, file.Content)
}
