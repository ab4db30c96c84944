package service

import (
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

type PayoutService interface {
	ListBanks(ctx context.Context) ([]model.Bank, error)
	// SaveAccount verifies the account with the gateway, stores it and
	// releases any payouts that were waiting on it.
	SaveAccount(ctx context.Context, sellerID string, req *dto.SavePayoutAccountRequest) (*dto.SavePayoutAccountResponse, error)
	GetAccount(ctx context.Context, sellerID string) (*model.SellerPayoutProfile, error)
	DeleteAccount(ctx context.Context, sellerID string) error
}

type payoutServiceImpl struct {
	paystack   client.PaystackClient
	profiles   repository.PayoutProfileRepository
	settlement SettlementService
	currency   string
	now        func() time.Time
}

func NewPayoutService(
	paystack client.PaystackClient,
	settlement SettlementService,
	payoutProfileRepo repository.PayoutProfileRepository,
	currency string,
) PayoutService {
	return &payoutServiceImpl{
		paystack:   paystack,
		profiles:   payoutProfileRepo,
		settlement: settlement,
		currency:   currency,
		now:        time.Now,
	}
}

func (s *payoutServiceImpl) ListBanks(ctx context.Context) ([]model.Bank, error) {
	banks, err := s.paystack.ListBanks(ctx, s.currency)
	if err != nil {
		logging.FromContext(ctx).Error("list banks failed", "error", err)
		return nil, gatewayError("could not load banks, please try again", err)
	}
	return banks, nil
}

func (s *payoutServiceImpl) SaveAccount(ctx context.Context, sellerID string, req *dto.SavePayoutAccountRequest) (*dto.SavePayoutAccountResponse, error) {
	l := logging.FromContext(ctx).With("op", "payout.save_account", "seller_id", sellerID)

	bankCode := strings.TrimSpace(req.BankCode)
	accountNumber := strings.TrimSpace(req.AccountNumber)
	switch {
	case bankCode == "":
		return nil, validationError("bankCode is required")
	case strings.TrimSpace(req.BankName) == "":
		return nil, validationError("bankName is required")
	case !isDigits(accountNumber) || len(accountNumber) < 6 || len(accountNumber) > 20:
		return nil, validationError("accountNumber must be 6 to 20 digits")
	}

	resolved, err := s.paystack.ResolveAccount(ctx, accountNumber, bankCode)
	if client.IsRejected(err) {
		l.Warn("gateway rejected payout account", "bank_code", bankCode, "error", err)
		return nil, validationError("bank account could not be verified")
	}
	if err != nil {
		l.Error("account resolve failed", "bank_code", bankCode, "error", err)
		return nil, gatewayError("could not verify the bank account, please try again", err)
	}

	profile := &model.SellerPayoutProfile{
		SellerID:       sellerID,
		BankName:       strings.TrimSpace(req.BankName),
		BankCode:       bankCode,
		AccountNumber:  accountNumber,
		AccountName:    resolved.AccountName,
		SubaccountCode: strings.TrimSpace(req.SubaccountCode),
		VerifiedAt:     s.now().UTC(),
	}
	if err := s.profiles.Upsert(ctx, profile); err != nil {
		return nil, fmt.Errorf("save payout profile: %w", err)
	}
	l.Info("payout account saved", "bank_code", bankCode)

	released := 0
	if s.settlement != nil {
		released, err = s.settlement.RetrySellerPayouts(ctx, sellerID)
		if err != nil {
			l.Error("release deferred payouts failed", "error", err)
		}
	}

	saved, err := s.profiles.Get(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("reload payout profile: %w", err)
	}
	return &dto.SavePayoutAccountResponse{Account: saved, PayoutsReleased: released}, nil
}

func (s *payoutServiceImpl) GetAccount(ctx context.Context, sellerID string) (*model.SellerPayoutProfile, error) {
	profile, err := s.profiles.Get(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payout profile: %w", err)
	}
	return profile, nil
}

func (s *payoutServiceImpl) DeleteAccount(ctx context.Context, sellerID string) error {
	err := s.profiles.Delete(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("delete payout profile: %w", err)
	}
	logging.FromContext(ctx).Info("payout account removed", "seller_id", sellerID)
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
