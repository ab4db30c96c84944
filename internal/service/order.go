package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"gorm.io/gorm"
)

// statusUpdates are the transitions a seller or admin may request by hand.
// paid and completed are only ever set by payment verification and fulfillment.
var statusUpdates = map[model.OrderStatus]struct {
	notification model.NotificationType
	title        string
	message      string
}{
	model.OrderStatusShipped:   {model.NotificationShipped, "Order shipped", "Your order for %s is on its way."},
	model.OrderStatusDelivered: {model.NotificationDelivered, "Order delivered", "Your order for %s has been delivered."},
	model.OrderStatusCancelled: {model.NotificationCancelled, "Order cancelled", "Your order for %s has been cancelled."},
}

type OrderService interface {
	Get(ctx context.Context, actor dto.Actor, orderID string) (*model.Order, error)
	ListMine(ctx context.Context, actor dto.Actor, limit int) ([]*model.Order, error)
	UpdateStatus(ctx context.Context, actor dto.Actor, orderID string, req *dto.UpdateOrderStatusRequest) (*model.Order, error)
}

type orderServiceImpl struct {
	db       *gorm.DB
	email    client.EmailClient
	orders   repository.OrderRepository
	products repository.ProductRepository
	profiles repository.ProfileRepository
	notifier *notifier
	appURL   string
	now      func() time.Time
}

func NewOrderService(
	db *gorm.DB,
	email client.EmailClient,
	publisher client.EventPublisher,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	profileRepo repository.ProfileRepository,
	notificationRepo repository.NotificationRepository,
	appURL string,
) OrderService {
	return &orderServiceImpl{
		db:       db,
		email:    email,
		orders:   orderRepo,
		products: productRepo,
		profiles: profileRepo,
		notifier: newNotifier(notificationRepo, publisher),
		appURL:   appURL,
		now:      time.Now,
	}
}

func (s *orderServiceImpl) load(ctx context.Context, orderID string) (*model.Order, *model.Listing, error) {
	order, err := s.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find order: %w", err)
	}
	listing, err := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrProductNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve product: %w", err)
	}
	return order, listing, nil
}

func (s *orderServiceImpl) Get(ctx context.Context, actor dto.Actor, orderID string) (*model.Order, error) {
	order, listing, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && order.BuyerID != actor.ID && (listing.SellerID == "" || listing.SellerID != actor.ID) {
		return nil, ErrAccessDenied
	}
	return order, nil
}

func (s *orderServiceImpl) ListMine(ctx context.Context, actor dto.Actor, limit int) ([]*model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	orders, err := s.orders.ListByBuyer(ctx, actor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *orderServiceImpl) UpdateStatus(ctx context.Context, actor dto.Actor, orderID string, req *dto.UpdateOrderStatusRequest) (*model.Order, error) {
	l := logging.FromContext(ctx).With("op", "order.update_status", "order_id", orderID, "target", req.Status)

	update, ok := statusUpdates[req.Status]
	if !ok {
		return nil, validationError("status must be one of shipped, delivered or cancelled")
	}

	order, listing, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && (listing.SellerID == "" || listing.SellerID != actor.ID) {
		return nil, ErrAccessDenied
	}
	if !model.CanTransition(order.Status, req.Status) {
		return nil, &Error{ErrStateConflict, fmt.Sprintf("order cannot move from %s to %s", order.Status, req.Status)}
	}

	now := s.now().UTC()
	fields := map[string]interface{}{}
	switch req.Status {
	case model.OrderStatusShipped:
		fields["shipped_at"] = now
		if tn := strings.TrimSpace(req.TrackingNumber); tn != "" {
			fields["tracking_number"] = tn
		} else if order.TrackingNumber == "" {
			fields["tracking_number"] = newTrackingNumber(now)
		}
	case model.OrderStatusDelivered:
		fields["delivered_at"] = now
	}

	var notes []*model.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.orders.Transition(ctx, tx, order.ID, []model.OrderStatus{order.Status}, req.Status, fields)
		if err != nil {
			return err
		}
		if !moved {
			return ErrInvalidTransition
		}
		note, err := s.notifier.record(ctx, tx, order.BuyerID, order.ID, update.notification,
			update.title, fmt.Sprintf(update.message, listing.Title))
		if err != nil {
			return err
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	s.notifier.publish(ctx, notes...)
	l.Info("order status updated", "from", order.Status, "by", actor.ID)

	updated, err := s.orders.FindByID(ctx, nil, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	s.sendStatusEmail(ctx, updated, listing, update.title, fmt.Sprintf(update.message, listing.Title))
	return updated, nil
}

// sendStatusEmail is best effort; the in-app notification is the record.
func (s *orderServiceImpl) sendStatusEmail(ctx context.Context, order *model.Order, listing *model.Listing, headline, message string) {
	l := logging.FromContext(ctx)
	to := resolveDeliveryEmail(ctx, s.profiles, order, "")
	if to == "" || s.email == nil {
		return
	}

	var body bytes.Buffer
	err := statusEmail.Execute(&body, statusEmailData{
		Headline:       headline,
		Message:        message,
		TrackingNumber: order.TrackingNumber,
		Link:           purchaseLink(s.appURL, order.ID),
	})
	if err != nil {
		l.Warn("render status email failed", "error", err)
		return
	}
	if _, err := s.email.Send(ctx, &client.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("%s: %s", headline, listing.Title),
		HTML:    body.String(),
	}); err != nil {
		l.Warn("status email failed", "order_id", order.ID, "error", err)
	}
}
