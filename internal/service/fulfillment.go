package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"gorm.io/gorm"
)

var purchaseEmail = template.Must(template.New("purchase").Parse(`<!doctype html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <h2>Thanks for your purchase!</h2>
  <p>Your order for <strong>{{.Title}}</strong> is ready.</p>
  <table cellpadding="4">
    <tr><td>Order</td><td>{{.OrderID}}</td></tr>
    <tr><td>Amount</td><td>{{.Amount}} {{.Currency}}</td></tr>
    <tr><td>Reference</td><td>{{.Reference}}</td></tr>
  </table>
  {{if .DownloadURL}}
  <p><a href="{{.DownloadURL}}">Download {{.Title}}</a></p>
  <p style="color: #6b7280; font-size: 12px;">This link is for you only and works until {{.Expires}}.</p>
  {{else}}
  <p><a href="{{.Link}}">Open your purchase</a> to download it.</p>
  <p style="color: #6b7280; font-size: 12px;">Download links are issued on demand and expire shortly after.</p>
  {{end}}
</body>
</html>`))

var statusEmail = template.Must(template.New("status").Parse(`<!doctype html>
<html>
<body style="font-family: sans-serif; color: #1f2937;">
  <h2>{{.Headline}}</h2>
  <p>{{.Message}}</p>
  {{if .TrackingNumber}}<p>Tracking number: <strong>{{.TrackingNumber}}</strong></p>{{end}}
  <p><a href="{{.Link}}">View your order</a></p>
</body>
</html>`))

type purchaseEmailData struct {
	Title       string
	OrderID     string
	Amount      string
	Currency    string
	Reference   string
	Link        string
	DownloadURL string
	Expires     string
}

type statusEmailData struct {
	Headline       string
	Message        string
	TrackingNumber string
	Link           string
}

type FulfillmentService interface {
	// FulfillDigital emails the buyer a link to a paid digital purchase and
	// completes the order. deliveryEmail, when set, wins over stored addresses.
	FulfillDigital(ctx context.Context, orderID, deliveryEmail string) (*model.Order, error)
}

type fulfillmentServiceImpl struct {
	db         *gorm.DB
	email      client.EmailClient
	downloads  DownloadService
	orders     repository.OrderRepository
	products   repository.ProductRepository
	profiles   repository.ProfileRepository
	notifier   *notifier
	appURL     string
	minorUnits int32
}

func NewFulfillmentService(
	db *gorm.DB,
	email client.EmailClient,
	publisher client.EventPublisher,
	downloads DownloadService,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	profileRepo repository.ProfileRepository,
	notificationRepo repository.NotificationRepository,
	appURL string,
	minorUnits int32,
) FulfillmentService {
	return &fulfillmentServiceImpl{
		db:         db,
		email:      email,
		downloads:  downloads,
		orders:     orderRepo,
		products:   productRepo,
		profiles:   profileRepo,
		notifier:   newNotifier(notificationRepo, publisher),
		appURL:     appURL,
		minorUnits: minorUnits,
	}
}

func (s *fulfillmentServiceImpl) FulfillDigital(ctx context.Context, orderID, deliveryEmail string) (*model.Order, error) {
	l := logging.FromContext(ctx).With("op", "fulfillment.digital", "order_id", orderID)

	order, err := s.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	if !order.Status.IsPaid() {
		return nil, ErrOrderNotPaid
	}

	listing, err := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}
	if !listing.IsDigital() {
		return nil, ErrWrongProductType
	}

	to := resolveDeliveryEmail(ctx, s.profiles, order, deliveryEmail)
	if to == "" {
		return nil, ErrNoDeliveryAddress
	}

	data := purchaseEmailData{
		Title:     listing.Title,
		OrderID:   order.ID,
		Amount:    order.Amount.StringFixed(s.minorUnits),
		Currency:  order.Currency,
		Reference: order.GatewayReference,
		Link:      purchaseLink(s.appURL, order.ID),
	}
	if order.BuyerID == "" {
		// Guests have no purchases page to come back to.
		ticket, err := s.downloads.IssueForGuest(ctx, order.ID, to)
		if err != nil {
			return nil, fmt.Errorf("issue guest download link: %w", err)
		}
		data.DownloadURL = ticket.URL
		data.Expires = ticket.ExpiresAt.Format("2 Jan 2006 15:04 MST")
	}

	var body bytes.Buffer
	if err := purchaseEmail.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render purchase email: %w", err)
	}

	messageID, err := s.email.Send(ctx, &client.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("Your purchase: %s", listing.Title),
		HTML:    body.String(),
	})
	if err != nil {
		l.Error("purchase email failed", "error", err)
		return nil, gatewayError("could not send the purchase email", err)
	}
	l.Info("purchase email sent", "message_id", messageID)

	var notes []*model.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orders.MarkEmailSent(ctx, tx, order.ID); err != nil {
			return err
		}
		moved, err := s.orders.Transition(ctx, tx, order.ID, []model.OrderStatus{model.OrderStatusPaid}, model.OrderStatusCompleted, nil)
		if err != nil {
			return err
		}
		if !moved {
			// Resent email for an order that is already completed.
			return nil
		}
		note, err := s.notifier.record(ctx, tx, order.BuyerID, order.ID, model.NotificationDelivered,
			"Your download is ready",
			fmt.Sprintf("%s has been delivered to %s.", listing.Title, to))
		if err != nil {
			return err
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	s.notifier.publish(ctx, notes...)

	return s.orders.FindByID(ctx, nil, order.ID)
}

// resolveDeliveryEmail picks explicit delivery email, then the order's
// delivery and account emails, then the buyer's profile email.
func resolveDeliveryEmail(ctx context.Context, profiles repository.ProfileRepository, order *model.Order, explicit string) string {
	for _, candidate := range []string{explicit, order.DeliveryEmail, order.BuyerEmail} {
		if candidate != "" {
			return candidate
		}
	}
	if order.BuyerID == "" {
		return ""
	}
	profile, err := profiles.FindByID(ctx, order.BuyerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logging.FromContext(ctx).Warn("profile lookup failed", "buyer_id", order.BuyerID, "error", err)
		}
		return ""
	}
	return profile.Email
}

func purchaseLink(appURL, orderID string) string {
	return fmt.Sprintf("%s/purchases/%s", appURL, orderID)
}
