package server

import (
	"context"
	"log/slog"
	"net/http"

	"marketplace-settlement/internal/handler"
	appmw "marketplace-settlement/internal/middleware"
	"marketplace-settlement/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Services struct {
	Payment      service.PaymentService
	Settlement   service.SettlementService
	Fulfillment  service.FulfillmentService
	Download     service.DownloadService
	Order        service.OrderService
	Payout       service.PayoutService
	Notification service.NotificationService
}

type Server struct {
	echo                *echo.Echo
	jwtSecret           []byte
	paymentHandler      *handler.PaymentHandler
	downloadHandler     *handler.DownloadHandler
	orderHandler        *handler.OrderHandler
	settlementHandler   *handler.SettlementHandler
	payoutHandler       *handler.PayoutHandler
	notificationHandler *handler.NotificationHandler
}

func NewServer(logger *slog.Logger, jwtSecret []byte, svc Services) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:                e,
		jwtSecret:           jwtSecret,
		paymentHandler:      handler.NewPaymentHandler(svc.Payment),
		downloadHandler:     handler.NewDownloadHandler(svc.Download),
		orderHandler:        handler.NewOrderHandler(svc.Order, svc.Fulfillment),
		settlementHandler:   handler.NewSettlementHandler(svc.Settlement),
		payoutHandler:       handler.NewPayoutHandler(svc.Payout),
		notificationHandler: handler.NewNotificationHandler(svc.Notification),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	requireAuth := appmw.RequireAuth(s.jwtSecret)
	optionalAuth := appmw.OptionalAuth(s.jwtSecret)
	adminOnly := appmw.RequireRole(appmw.RoleAdmin)

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- payments --------
	payments := api.Group("/payments")
	payments.POST("/initiate", s.paymentHandler.Initiate, optionalAuth)
	payments.POST("/verify", s.paymentHandler.Verify)
	payments.GET("/verify", s.paymentHandler.Verify)
	payments.POST("/webhook", s.paymentHandler.Webhook)

	// -------- settlements --------
	api.POST("/settlements/process", s.settlementHandler.Process, requireAuth, adminOnly)

	// -------- downloads --------
	// Guest links carry no session; the service binds them to the token.
	downloads := api.Group("/downloads")
	downloads.POST("/issue", s.downloadHandler.Issue, requireAuth)
	downloads.GET("/redeem/:token", s.downloadHandler.Redeem, optionalAuth)

	// -------- orders --------
	orders := api.Group("/orders", requireAuth)
	orders.GET("", s.orderHandler.ListMine)
	orders.GET("/:id", s.orderHandler.Get)
	orders.POST("/:id/status", s.orderHandler.UpdateStatus)
	orders.POST("/:id/fulfill", s.orderHandler.Fulfill, adminOnly)

	// -------- payouts --------
	payouts := api.Group("/payouts", requireAuth)
	payouts.GET("/banks", s.payoutHandler.ListBanks)
	payouts.GET("/account", s.payoutHandler.GetAccount)
	payouts.POST("/account", s.payoutHandler.SaveAccount)
	payouts.DELETE("/account", s.payoutHandler.DeleteAccount)

	// -------- notifications --------
	notifications := api.Group("/notifications", requireAuth)
	notifications.GET("", s.notificationHandler.List)
	notifications.POST("/:id/read", s.notificationHandler.MarkRead)
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
