package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/dto"
	"marketplace-settlement/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) seedPaidOrder(t *testing.T, productID string, kind model.ProductKind, status model.OrderStatus) *model.Order {
	t.Helper()
	order := &model.Order{
		ID:               uuid.NewString(),
		ProductID:        productID,
		ProductKind:      kind,
		BuyerID:          buyer.ID,
		BuyerEmail:       buyer.Email,
		Amount:           decimal.RequireFromString("10.00"),
		Currency:         "NGN",
		ExchangeRate:     decimal.NewFromInt(1),
		GatewayAmount:    1000,
		PaymentMethod:    "card",
		PaymentGateway:   gatewayPaystack,
		GatewayReference: "MKT-1-" + uuid.NewString()[:8],
		CommissionRate:   decimal.RequireFromString("0.25"),
		CommissionAmount: decimal.RequireFromString("2.50"),
		SellerAmount:     decimal.RequireFromString("7.50"),
		Status:           status,
	}
	if kind == model.ProductKindPlatform {
		order.CommissionRate = decimal.Zero
		order.CommissionAmount = decimal.Zero
		order.SellerAmount = order.Amount
	}
	require.NoError(t, e.db.Create(order).Error)
	return order
}

func TestSettlement_DeferredUntilSellerAddsDetails(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	ctx := context.Background()

	res, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusDeferred, res.Payout)
	assert.True(t, res.Split.PlatformPaid)
	assert.False(t, res.Split.SellerPaid)
	assert.True(t, res.Split.PlatformAmount.Add(res.Split.SellerAmount).Equal(res.Split.TotalAmount))
	assert.Empty(t, e.paystack.transferCalls)

	// a second run while still missing details must not nag again
	_, err = e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	notes := e.notifications(t, "seller-1")
	require.Len(t, notes, 1)
	assert.Equal(t, model.NotificationPayoutPending, notes[0].Type)

	e.seedPayoutProfile(t, "seller-1")
	res, err = e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusPaid, res.Payout)
	assert.True(t, res.Split.SellerPaid)
	assert.NotEmpty(t, res.Split.SellerReference)

	var count int64
	require.NoError(t, e.db.Model(&model.PaymentSplit{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.Len(t, e.paystack.transferCalls, 1)
	transfer := e.paystack.transferCalls[0]
	assert.Equal(t, int64(750), transfer.Amount)
	assert.Equal(t, "RCP_test", transfer.Recipient)
	assert.Equal(t, "payout-"+order.ID, transfer.Reference)
	assert.Equal(t, 1, e.paystack.recipientCalls)

	notes = e.notifications(t, "seller-1")
	require.Len(t, notes, 2)
	assert.Equal(t, model.NotificationPayoutSent, notes[1].Type)
}

func TestSettlement_PaidSplitIsNotPaidTwice(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusProcessing)
	ctx := context.Background()

	_, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	res, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)

	assert.Equal(t, model.PayoutStatusPaid, res.Payout)
	assert.Len(t, e.paystack.transferCalls, 1)
}

func TestSettlement_ReusesStoredRecipient(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	first := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	second := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	ctx := context.Background()

	_, err := e.settlement.Process(ctx, first.ID)
	require.NoError(t, err)
	_, err = e.settlement.Process(ctx, second.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, e.paystack.recipientCalls)
	assert.Len(t, e.paystack.transferCalls, 2)
}

func TestSettlement_TransferFailureIsRecordedNotReturned(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	e.paystack.transferErr = errUpstream

	res, err := e.settlement.Process(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, res.Payout)
	assert.True(t, res.Split.PlatformPaid)
	assert.False(t, res.Split.SellerPaid)
	assert.Contains(t, res.Split.PayoutError, "upstream down")
	assert.Equal(t, 1, res.Split.PayoutAttempts)

	e.paystack.transferErr = nil
	paid, err := e.settlement.RetrySellerPayouts(context.Background(), "seller-1")
	require.NoError(t, err)
	assert.Equal(t, 1, paid)
}

func TestSettlement_RetryAfterLostReplyReusesReference(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	ctx := context.Background()

	e.paystack.transferErr = errReplyLost
	res, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusFailed, res.Payout)

	e.paystack.transferErr = nil
	res, err = e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)

	require.Len(t, e.paystack.transferCalls, 2)
	assert.Equal(t, e.paystack.transferCalls[0].Reference, e.paystack.transferCalls[1].Reference)
	assert.Equal(t, e.paystack.transferCalls[0].Amount, e.paystack.transferCalls[1].Amount)
	assert.Equal(t, []string{"payout-" + order.ID}, e.paystack.verifyTransfer)
	assert.Len(t, e.paystack.transfers, 1, "the gateway holds one transfer")

	assert.Equal(t, model.PayoutStatusPaid, res.Payout)
	assert.True(t, res.Split.SellerPaid)
	assert.Equal(t, "payout-"+order.ID, res.Split.SellerReference)
	assert.Equal(t, 2, res.Split.PayoutAttempts)
}

func TestSettlement_RefusedEarlierTransferStaysFailed(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	ctx := context.Background()

	e.paystack.transferStat = "failed"
	e.paystack.transferErr = errReplyLost
	_, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)

	e.paystack.transferErr = nil
	res, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, res.Payout)
	assert.False(t, res.Split.SellerPaid)
	assert.Contains(t, res.Split.PayoutError, "refused")
}

func TestSettlement_ConcurrentRunsPayOnce(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	serializeDB(t, e)

	const runs = 8
	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.settlement.Process(context.Background(), order.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Len(t, e.paystack.transferCalls, 1)
	var split model.PaymentSplit
	require.NoError(t, e.db.Where("order_id = ?", order.ID).First(&split).Error)
	assert.Equal(t, model.PayoutStatusPaid, split.PayoutStatus)
	assert.Equal(t, 1, split.PayoutAttempts)

	var sent int
	for _, n := range e.notifications(t, "seller-1") {
		if n.Type == model.NotificationPayoutSent {
			sent++
		}
	}
	assert.Equal(t, 1, sent)
}

func TestSettlement_AccountNameChangeBlocksTransfer(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	e.seedPayoutProfile(t, "seller-1")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	e.paystack.accountName = "SOMEONE ELSE"

	res, err := e.settlement.Process(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusFailed, res.Payout)
	assert.Empty(t, e.paystack.transferCalls)
}

func TestSettlement_PlatformProductNeedsNoPayout(t *testing.T) {
	e := newEnv(t)
	e.seedPlatformProduct(t, "pp-1", "10.00")
	order := e.seedPaidOrder(t, "pp-1", model.ProductKindPlatform, model.OrderStatusCompleted)

	res, err := e.settlement.Process(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusNotRequired, res.Payout)
	assert.True(t, res.Split.SellerPaid)
	assert.True(t, res.Split.PlatformAmount.IsZero())
	assert.Empty(t, res.Split.SellerID)
	assert.Empty(t, e.paystack.transferCalls)
}

func TestSettlement_RejectsUnpaidAndUnknownOrders(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPending)
	ctx := context.Background()

	_, err := e.settlement.Process(ctx, order.ID)
	assert.ErrorIs(t, err, ErrOrderNotPaid)

	_, err = e.settlement.Process(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.settlement.Process(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPayouts_SaveAccountReleasesDeferredPayouts(t *testing.T) {
	e := newEnv(t)
	e.seedSellerProduct(t, "p-1", model.ProductTypePhysical, "10.00")
	order := e.seedPaidOrder(t, "p-1", model.ProductKindSeller, model.OrderStatusPaid)
	ctx := context.Background()

	res, err := e.settlement.Process(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.PayoutStatusDeferred, res.Payout)

	saved, err := e.payouts.SaveAccount(ctx, "seller-1", &dto.SavePayoutAccountRequest{
		BankName: "Test Bank", BankCode: "058", AccountNumber: "0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "ADA SELLER", saved.Account.AccountName, "account name comes from the gateway")
	assert.Equal(t, 1, saved.PayoutsReleased)

	var split model.PaymentSplit
	require.NoError(t, e.db.Where("order_id = ?", order.ID).First(&split).Error)
	assert.True(t, split.SellerPaid)
	assert.Equal(t, model.PayoutStatusPaid, split.PayoutStatus)
}

func TestPayouts_AccountLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.payouts.SaveAccount(ctx, "seller-1", &dto.SavePayoutAccountRequest{BankName: "B", BankCode: "058", AccountNumber: "12ab"})
	assert.ErrorIs(t, err, ErrValidation)

	e.paystack.resolveErr = &client.APIError{StatusCode: 422, Message: "Could not resolve account name"}
	_, err = e.payouts.SaveAccount(ctx, "seller-1", &dto.SavePayoutAccountRequest{BankName: "B", BankCode: "058", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, ErrValidation)

	e.paystack.resolveErr = fmt.Errorf("resolve account: %w", errUpstream)
	_, err = e.payouts.SaveAccount(ctx, "seller-1", &dto.SavePayoutAccountRequest{BankName: "B", BankCode: "058", AccountNumber: "0123456789"})
	assert.ErrorIs(t, err, ErrGateway)
	assert.NotErrorIs(t, err, ErrValidation)
	e.paystack.resolveErr = nil

	_, err = e.payouts.GetAccount(ctx, "seller-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = e.payouts.SaveAccount(ctx, "seller-1", &dto.SavePayoutAccountRequest{BankName: "B", BankCode: "058", AccountNumber: "0123456789"})
	require.NoError(t, err)

	got, err := e.payouts.GetAccount(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", got.AccountNumber)

	banks, err := e.payouts.ListBanks(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, banks)

	require.NoError(t, e.payouts.DeleteAccount(ctx, "seller-1"))
	assert.ErrorIs(t, e.payouts.DeleteAccount(ctx, "seller-1"), ErrProfileNotFound)
}
