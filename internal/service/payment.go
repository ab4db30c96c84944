package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/commission"
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const gatewayPaystack = "paystack"

var paymentMethods = map[string]bool{
	"card":          true,
	"bank":          true,
	"bank_transfer": true,
	"ussd":          true,
	"mobile_money":  true,
	"qr":            true,
}

type PaymentService interface {
	Initiate(ctx context.Context, actor dto.Actor, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error)
	// Verify confirms a charge with the gateway and moves the order to paid.
	// A reference that was already confirmed returns ErrAlreadyProcessed
	// alongside the current order state.
	Verify(ctx context.Context, reference string) (*dto.VerifyPaymentResponse, error)
	HandleWebhook(ctx context.Context, signature string, body []byte) error
}

type PaymentOptions struct {
	Currency    string
	CallbackURL string
	MinorUnits  int32
}

type paymentServiceImpl struct {
	db          *gorm.DB
	paystack    client.PaystackClient
	products    repository.ProductRepository
	orders      repository.OrderRepository
	rates       repository.ExchangeRateRepository
	profiles    repository.ProfileRepository
	webhooks    repository.WebhookEventRepository
	calculator  *commission.Calculator
	settlement  SettlementService
	fulfillment FulfillmentService
	notifier    *notifier
	opts        PaymentOptions
	now         func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	paystack client.PaystackClient,
	publisher client.EventPublisher,
	calculator *commission.Calculator,
	settlement SettlementService,
	fulfillment FulfillmentService,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	exchangeRateRepo repository.ExchangeRateRepository,
	profileRepo repository.ProfileRepository,
	webhookEventRepo repository.WebhookEventRepository,
	notificationRepo repository.NotificationRepository,
	opts PaymentOptions,
) PaymentService {
	return &paymentServiceImpl{
		db:          db,
		paystack:    paystack,
		products:    productRepo,
		orders:      orderRepo,
		rates:       exchangeRateRepo,
		profiles:    profileRepo,
		webhooks:    webhookEventRepo,
		calculator:  calculator,
		settlement:  settlement,
		fulfillment: fulfillment,
		notifier:    newNotifier(notificationRepo, publisher),
		opts:        opts,
		now:         time.Now,
	}
}

func (s *paymentServiceImpl) Initiate(ctx context.Context, actor dto.Actor, req *dto.InitiatePaymentRequest) (*dto.InitiatePaymentResponse, error) {
	l := logging.FromContext(ctx).With("op", "payment.initiate", "product_id", req.ProductID)

	if req.ProductID == "" {
		return nil, validationError("productId is required")
	}
	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = "card"
	}
	if !paymentMethods[method] {
		return nil, validationError("unsupported payment method %q", req.PaymentMethod)
	}
	if req.DeliveryEmail != "" {
		if _, err := mail.ParseAddress(req.DeliveryEmail); err != nil {
			return nil, validationError("deliveryEmail is not a valid email address")
		}
	}
	if actor.IsGuest() && req.DeliveryEmail == "" {
		return nil, validationError("deliveryEmail is required for guest checkout")
	}

	listing, err := s.products.Resolve(ctx, req.ProductID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}

	customerEmail := req.DeliveryEmail
	if customerEmail == "" {
		customerEmail = actor.Email
	}
	if customerEmail == "" {
		if profile, err := s.profiles.FindByID(ctx, actor.ID); err == nil {
			customerEmail = profile.Email
		}
	}
	if customerEmail == "" {
		return nil, ErrNoDeliveryAddress
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.opts.Currency
	}
	rate, err := s.exchangeRate(ctx, listing.Currency, currency)
	if err != nil {
		return nil, err
	}

	owner := commission.SellerOwned
	if listing.Kind == model.ProductKindPlatform {
		owner = commission.PlatformOwned
	}
	split, err := s.calculator.Split(listing.Price, owner)
	if err != nil {
		l.Warn("product price cannot be split", "price", listing.Price, "error", err)
		return nil, validationError("product has an invalid price")
	}

	now := s.now()
	order := &model.Order{
		ID:               uuid.NewString(),
		ProductID:        listing.ID,
		ProductKind:      listing.Kind,
		BuyerID:          actor.ID,
		BuyerEmail:       actor.Email,
		DeliveryEmail:    req.DeliveryEmail,
		Amount:           listing.Price,
		Currency:         currency,
		ExchangeRate:     rate,
		GatewayAmount:    commission.ToMinorUnits(listing.Price.Mul(rate), s.opts.MinorUnits),
		PaymentMethod:    method,
		PaymentGateway:   gatewayPaystack,
		GatewayReference: newPaymentReference(now),
		CommissionRate:   split.Rate,
		CommissionAmount: split.CommissionAmount,
		SellerAmount:     split.SellerAmount,
		Status:           model.OrderStatusPending,
	}
	if err := s.orders.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	l = l.With("order_id", order.ID, "reference", order.GatewayReference)

	channels := []string{method}
	if method == "bank_transfer" || method == "bank" {
		channels = []string{"bank", "bank_transfer"}
	}
	checkout, err := s.paystack.InitializeTransaction(ctx, &model.InitializeTransactionRequest{
		Email:       customerEmail,
		Amount:      order.GatewayAmount,
		Reference:   order.GatewayReference,
		Currency:    order.Currency,
		CallbackURL: s.opts.CallbackURL,
		Channels:    channels,
		Metadata: map[string]string{
			"order_id":   order.ID,
			"product_id": order.ProductID,
			"buyer_id":   order.BuyerID,
		},
	})
	if err != nil {
		// The pending order stays behind; nothing was charged.
		l.Error("gateway initialize failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayInit, err)
	}

	l.Info("payment initiated", "gateway_amount", order.GatewayAmount, "currency", order.Currency)

	return &dto.InitiatePaymentResponse{
		OrderID:          order.ID,
		Reference:        order.GatewayReference,
		AuthorizationURL: checkout.AuthorizationURL,
		AccessCode:       checkout.AccessCode,
		Amount:           order.Amount,
		Currency:         order.Currency,
		GatewayAmount:    order.GatewayAmount,
	}, nil
}

// exchangeRate falls back to 1 when no rate is stored for the pair.
func (s *paymentServiceImpl) exchangeRate(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if base == "" || strings.EqualFold(base, quote) {
		return one, nil
	}

	rate, ok, err := s.rates.FindRate(ctx, base, quote)
	if err != nil {
		return decimal.Zero, fmt.Errorf("find exchange rate: %w", err)
	}
	if !ok || !rate.IsPositive() {
		logging.FromContext(ctx).Warn("no exchange rate stored, charging at 1:1", "base", base, "quote", quote)
		return one, nil
	}
	return rate, nil
}

func (s *paymentServiceImpl) Verify(ctx context.Context, reference string) (*dto.VerifyPaymentResponse, error) {
	reference = strings.TrimSpace(reference)
	l := logging.FromContext(ctx).With("op", "payment.verify", "reference", reference)
	if reference == "" {
		return nil, validationError("reference is required")
	}

	order, err := s.orders.FindByReference(ctx, nil, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	l = l.With("order_id", order.ID)

	if order.Status != model.OrderStatusPending {
		listing, _ := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
		return verifyResponse(order, listing, true), ErrAlreadyProcessed
	}

	charge, err := s.paystack.VerifyTransaction(ctx, reference)
	if err != nil {
		l.Error("gateway verify failed", "error", err)
		return nil, gatewayError("could not verify the payment, please try again", err)
	}
	if !charge.Succeeded() {
		l.Warn("payment not successful", "gateway_status", charge.Status, "gateway_response", charge.GatewayResponse)
		return nil, ErrPaymentNotConfirmed
	}
	if charge.Amount < order.GatewayAmount || (charge.Currency != "" && !strings.EqualFold(charge.Currency, order.Currency)) {
		l.Error("charged amount does not match order",
			"charged", charge.Amount, "charged_currency", charge.Currency,
			"expected", order.GatewayAmount, "expected_currency", order.Currency)
		return nil, ErrPaymentNotConfirmed
	}

	listing, err := s.products.ResolveKind(ctx, order.ProductID, order.ProductKind)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product: %w", err)
	}

	var notes []*model.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.orders.TransitionByReference(ctx, tx, reference, []model.OrderStatus{model.OrderStatusPending}, model.OrderStatusPaid)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyProcessed
		}
		if listing.IsDigital() {
			return nil
		}

		tracking := newTrackingNumber(s.now())
		ok, err = s.orders.Transition(ctx, tx, order.ID, []model.OrderStatus{model.OrderStatusPaid}, model.OrderStatusProcessing,
			map[string]interface{}{"tracking_number": tracking})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s left paid before processing", order.ID)
		}
		note, err := s.notifier.record(ctx, tx, order.BuyerID, order.ID, model.NotificationOrderConfirmed,
			"Order confirmed",
			fmt.Sprintf("Your order for %s is confirmed. Tracking number: %s.", listing.Title, tracking))
		if err != nil {
			return err
		}
		notes = append(notes, note)
		return nil
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		l.Info("payment already verified by a concurrent call")
		current, ferr := s.orders.FindByID(ctx, nil, order.ID)
		if ferr != nil {
			return nil, fmt.Errorf("reload order: %w", ferr)
		}
		return verifyResponse(current, listing, true), ErrAlreadyProcessed
	}
	if err != nil {
		return nil, fmt.Errorf("confirm payment: %w", err)
	}
	s.notifier.publish(ctx, notes...)
	l.Info("payment verified", "product_type", listing.Type)

	if s.settlement != nil {
		if _, err := s.settlement.Process(ctx, order.ID); err != nil {
			// Platform receipt stands; settlement is retried via the settlements endpoint.
			l.Error("settlement after payment failed", "error", err)
		}
	}

	if listing.IsDigital() && s.fulfillment != nil {
		if _, err := s.fulfillment.FulfillDigital(ctx, order.ID, order.DeliveryEmail); err != nil {
			l.Error("digital fulfillment failed, order stays paid", "error", err)
		}
	}

	current, err := s.orders.FindByID(ctx, nil, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order: %w", err)
	}
	return verifyResponse(current, listing, false), nil
}

func verifyResponse(order *model.Order, listing *model.Listing, already bool) *dto.VerifyPaymentResponse {
	resp := &dto.VerifyPaymentResponse{
		OrderID:          order.ID,
		Reference:        order.GatewayReference,
		Status:           order.Status,
		TrackingNumber:   order.TrackingNumber,
		EmailSent:        order.EmailSent,
		AlreadyProcessed: already,
	}
	if listing != nil {
		resp.ProductType = listing.Type
	}
	return resp
}

func (s *paymentServiceImpl) HandleWebhook(ctx context.Context, signature string, body []byte) error {
	l := logging.FromContext(ctx).With("op", "payment.webhook")

	if !s.paystack.VerifyWebhookSignature(body, signature) {
		l.Warn("webhook signature mismatch")
		return ErrInvalidSignature
	}

	var event model.PaystackWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return validationError("malformed webhook payload")
	}
	l = l.With("event", event.Event, "reference", event.Data.Reference)

	if event.Event != "charge.success" {
		l.Debug("ignoring webhook event")
		return nil
	}
	if event.Data.Reference == "" {
		return validationError("webhook payload has no reference")
	}

	eventID := fmt.Sprintf("%s:%s", event.Event, event.Data.Reference)
	seen, err := s.webhooks.Exists(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		l.Info("webhook already processed")
		return nil
	}

	if _, err := s.Verify(ctx, event.Data.Reference); err != nil && !errors.Is(err, ErrAlreadyProcessed) {
		// Gateway retries on non-2xx, so the event is not marked.
		return err
	}

	if _, err := s.webhooks.MarkProcessed(ctx, eventID, event.Event); err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	l.Info("webhook processed")
	return nil
}

func newPaymentReference(now time.Time) string {
	return fmt.Sprintf("MKT-%d-%s", now.UnixMilli(), shortID())
}

func newTrackingNumber(now time.Time) string {
	return fmt.Sprintf("TRK-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(shortID()))
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
