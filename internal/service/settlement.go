package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/commission"
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/logging"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SettlementService interface {
	// Process records the platform/seller split of a paid order and pays the
	// seller's share out. Safe to call repeatedly for the same order.
	Process(ctx context.Context, orderID string) (*dto.SettlementResponse, error)
	// RetrySellerPayouts re-runs deferred and failed payouts for a seller and
	// returns how many were paid.
	RetrySellerPayouts(ctx context.Context, sellerID string) (int, error)
}

type settlementServiceImpl struct {
	paystack   client.PaystackClient
	orders     repository.OrderRepository
	products   repository.ProductRepository
	splits     repository.SplitRepository
	payouts    repository.PayoutProfileRepository
	notifier   *notifier
	minorUnits int32
}

func NewSettlementService(
	paystack client.PaystackClient,
	publisher client.EventPublisher,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	splitRepo repository.SplitRepository,
	payoutProfileRepo repository.PayoutProfileRepository,
	notificationRepo repository.NotificationRepository,
	minorUnits int32,
) SettlementService {
	return &settlementServiceImpl{
		paystack:   paystack,
		orders:     orderRepo,
		products:   productRepo,
		splits:     splitRepo,
		payouts:    payoutProfileRepo,
		notifier:   newNotifier(notificationRepo, publisher),
		minorUnits: minorUnits,
	}
}

func (s *settlementServiceImpl) Process(ctx context.Context, orderID string) (*dto.SettlementResponse, error) {
	l := logging.FromContext(ctx).With("op", "settlement.process", "order_id", orderID)
	ctx = logging.IntoContext(ctx, l)

	if orderID == "" {
		return nil, validationError("orderId is required")
	}
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

	shares, err := commission.SplitAt(order.Amount, order.CommissionRate, s.minorUnits)
	if err != nil {
		return nil, fmt.Errorf("recompute split: %w", err)
	}
	if !shares.CommissionAmount.Equal(order.CommissionAmount) || !shares.SellerAmount.Equal(order.SellerAmount) {
		l.Warn("stored split differs from recomputed split",
			"stored_commission", order.CommissionAmount, "stored_seller", order.SellerAmount,
			"commission", shares.CommissionAmount, "seller", shares.SellerAmount)
	}

	split := &model.PaymentSplit{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		BuyerID:           order.BuyerID,
		SellerID:          listing.SellerID,
		ProductID:         order.ProductID,
		TotalAmount:       order.Amount,
		PlatformAmount:    shares.CommissionAmount,
		SellerAmount:      shares.SellerAmount,
		PlatformPaid:      true,
		PlatformReference: order.GatewayReference,
		PayoutStatus:      model.PayoutStatusPending,
	}
	if listing.Kind == model.ProductKindPlatform {
		split.SellerPaid = true
		split.PayoutStatus = model.PayoutStatusNotRequired
	}

	saved, err := s.splits.Upsert(ctx, nil, split)
	if err != nil {
		return nil, fmt.Errorf("record split: %w", err)
	}

	switch saved.PayoutStatus {
	case model.PayoutStatusPaid, model.PayoutStatusNotRequired, model.PayoutStatusProcessing:
		return &dto.SettlementResponse{Split: saved, Payout: saved.PayoutStatus}, nil
	}

	return s.payout(ctx, order, listing, saved.PayoutStatus)
}

// payout runs resolve, recipient and transfer for one claimed split. Gateway
// failures are recorded on the split rather than returned.
func (s *settlementServiceImpl) payout(ctx context.Context, order *model.Order, listing *model.Listing, previous model.PayoutStatus) (*dto.SettlementResponse, error) {
	l := logging.FromContext(ctx)

	claimed, err := s.splits.ClaimPayout(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("claim payout: %w", err)
	}
	split, err := s.splits.FindByOrderID(ctx, nil, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload split: %w", err)
	}
	if !claimed {
		l.Info("payout already taken by another run", "payout_status", split.PayoutStatus)
		return &dto.SettlementResponse{Split: split, Payout: split.PayoutStatus}, nil
	}

	profile, err := s.payouts.Get(ctx, split.SellerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.finish(ctx, order.ID, model.PayoutStatusFailed, "", "load payout profile failed")
		return nil, fmt.Errorf("load payout profile: %w", err)
	}
	if !profile.IsComplete() {
		l.Info("seller has no payout details, deferring", "seller_id", split.SellerID)
		split, err = s.finish(ctx, order.ID, model.PayoutStatusDeferred, "", "seller has no payout details")
		if err != nil {
			return nil, err
		}
		if previous != model.PayoutStatusDeferred {
			s.notify(ctx, split.SellerID, order.ID, model.NotificationPayoutPending,
				"Add your payout details",
				fmt.Sprintf("You made a sale of %s. Add your bank details to receive %s %s.",
					listing.Title, split.SellerAmount.StringFixed(s.minorUnits), order.Currency))
		}
		return &dto.SettlementResponse{Split: split, Payout: split.PayoutStatus}, nil
	}

	transferRef, err := s.transfer(ctx, order, profile, split)
	if err != nil {
		l.Error("seller payout failed", "seller_id", split.SellerID, "attempt", split.PayoutAttempts, "error", err)
		split, ferr := s.finish(ctx, order.ID, model.PayoutStatusFailed, "", err.Error())
		if ferr != nil {
			return nil, ferr
		}
		return &dto.SettlementResponse{Split: split, Payout: split.PayoutStatus}, nil
	}

	split, err = s.finish(ctx, order.ID, model.PayoutStatusPaid, transferRef, "")
	if err != nil {
		// The transfer went out; the reference in the log is the reconciliation key.
		l.Error("payout sent but not recorded", "transfer_reference", transferRef, "error", err)
		return nil, err
	}
	l.Info("seller paid", "seller_id", split.SellerID, "amount", split.SellerAmount, "transfer_reference", transferRef)
	s.notify(ctx, split.SellerID, order.ID, model.NotificationPayoutSent,
		"Payout sent",
		fmt.Sprintf("%s %s for %s is on its way to your bank account.",
			split.SellerAmount.StringFixed(s.minorUnits), order.Currency, listing.Title))

	return &dto.SettlementResponse{Split: split, Payout: split.PayoutStatus}, nil
}

func (s *settlementServiceImpl) transfer(ctx context.Context, order *model.Order, profile *model.SellerPayoutProfile, split *model.PaymentSplit) (string, error) {
	resolved, err := s.paystack.ResolveAccount(ctx, profile.AccountNumber, profile.BankCode)
	if err != nil {
		return "", fmt.Errorf("resolve account: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(resolved.AccountName), strings.TrimSpace(profile.AccountName)) {
		return "", fmt.Errorf("account name changed from %q to %q", profile.AccountName, resolved.AccountName)
	}

	recipient := profile.RecipientCode
	if recipient == "" {
		created, err := s.paystack.CreateTransferRecipient(ctx, &model.CreateRecipientRequest{
			Type:          "nuban",
			Name:          profile.AccountName,
			AccountNumber: profile.AccountNumber,
			BankCode:      profile.BankCode,
			Currency:      order.Currency,
		})
		if err != nil {
			return "", fmt.Errorf("create recipient: %w", err)
		}
		recipient = created.RecipientCode
		if err := s.payouts.SetRecipientCode(ctx, profile.SellerID, recipient); err != nil {
			logging.FromContext(ctx).Warn("could not store recipient code", "seller_id", profile.SellerID, "error", err)
		}
	}

	amount := split.SellerAmount.Mul(order.ExchangeRate).Truncate(s.minorUnits).Shift(s.minorUnits).IntPart()
	reference := payoutReference(order.ID)
	result, err := s.paystack.InitiateTransfer(ctx, &model.InitiateTransferRequest{
		Source:    "balance",
		Amount:    amount,
		Recipient: recipient,
		Reference: reference,
		Reason:    fmt.Sprintf("Payout for order %s", order.ID),
		Currency:  order.Currency,
	})
	if client.IsDuplicateReference(err) {
		// An earlier attempt reached the gateway even though its reply was lost.
		logging.FromContext(ctx).Warn("transfer reference already used, checking earlier transfer", "reference", reference)
		result, err = s.paystack.VerifyTransfer(ctx, reference)
		if err != nil {
			return "", fmt.Errorf("verify earlier transfer: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("initiate transfer: %w", err)
	}
	if !result.Accepted() {
		return "", fmt.Errorf("transfer %s refused with status %q", reference, result.Status)
	}
	if result.Reference != "" {
		reference = result.Reference
	}
	return reference, nil
}

// payoutReference is fixed per order so a retried transfer is recognised by
// the gateway as the same payout.
func payoutReference(orderID string) string {
	return "payout-" + orderID
}

func (s *settlementServiceImpl) finish(ctx context.Context, orderID string, status model.PayoutStatus, reference, reason string) (*model.PaymentSplit, error) {
	if err := s.splits.SetPayoutResult(ctx, orderID, status, reference, reason); err != nil {
		return nil, fmt.Errorf("record payout result: %w", err)
	}
	split, err := s.splits.FindByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload split: %w", err)
	}
	return split, nil
}

func (s *settlementServiceImpl) notify(ctx context.Context, userID, orderID string, typ model.NotificationType, title, message string) {
	note, err := s.notifier.record(ctx, nil, userID, orderID, typ, title, message)
	if err != nil {
		logging.FromContext(ctx).Warn("store notification failed", "type", typ, "error", err)
		return
	}
	s.notifier.publish(ctx, note)
}

func (s *settlementServiceImpl) RetrySellerPayouts(ctx context.Context, sellerID string) (int, error) {
	l := logging.FromContext(ctx).With("op", "settlement.retry", "seller_id", sellerID)

	splits, err := s.splits.ListRetryableBySeller(ctx, sellerID)
	if err != nil {
		return 0, fmt.Errorf("list retryable payouts: %w", err)
	}

	paid := 0
	for _, split := range splits {
		res, err := s.Process(ctx, split.OrderID)
		if err != nil {
			l.Error("payout retry failed", "order_id", split.OrderID, "error", err)
			continue
		}
		if res.Payout == model.PayoutStatusPaid {
			paid++
		}
	}
	l.Info("payout retry finished", "candidates", len(splits), "paid", paid)
	return paid, nil
}
