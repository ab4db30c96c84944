package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-settlement/internal/client"
	"marketplace-settlement/internal/commission"
	"marketplace-settlement/internal/model"
	"marketplace-settlement/internal/repository"
	"marketplace-settlement/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakePaystack struct {
	mu sync.Mutex

	initErr      error
	verifyResult *model.VerifyTransactionResult
	verifyErr    error
	accountName  string
	resolveErr   error
	transferErr  error
	transferStat string
	transfers    map[string]*model.TransferResult
	validSig     string

	initCalls      []*model.InitializeTransactionRequest
	verifyCalls    int
	recipientCalls int
	transferCalls  []*model.InitiateTransferRequest
	verifyTransfer []string
}

func (f *fakePaystack) InitializeTransaction(_ context.Context, req *model.InitializeTransactionRequest) (*model.InitializeTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls = append(f.initCalls, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &model.InitializeTransactionResult{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		AccessCode:       "ac_123",
		Reference:        req.Reference,
	}, nil
}

func (f *fakePaystack) VerifyTransaction(_ context.Context, reference string) (*model.VerifyTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	res := *f.verifyResult
	res.Reference = reference
	if res.Amount == 0 {
		// Charge exactly what was initialized unless a test says otherwise.
		for _, call := range f.initCalls {
			if call.Reference == reference {
				res.Amount = call.Amount
			}
		}
	}
	return &res, nil
}

func (f *fakePaystack) ResolveAccount(_ context.Context, accountNumber, bankCode string) (*model.ResolveAccountResult, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &model.ResolveAccountResult{AccountNumber: accountNumber, AccountName: f.accountName}, nil
}

func (f *fakePaystack) ListBanks(_ context.Context, currency string) ([]model.Bank, error) {
	return []model.Bank{{Name: "Test Bank", Code: "058", Currency: currency, Active: true}}, nil
}

func (f *fakePaystack) CreateTransferRecipient(_ context.Context, req *model.CreateRecipientRequest) (*model.TransferRecipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipientCalls++
	return &model.TransferRecipient{RecipientCode: "RCP_test", Name: req.Name, Active: true}, nil
}

// InitiateTransfer behaves like the gateway: a reference it has already
// accepted is refused as a duplicate, even when the caller never saw the reply.
func (f *fakePaystack) InitiateTransfer(_ context.Context, req *model.InitiateTransferRequest) (*model.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls = append(f.transferCalls, req)
	if _, seen := f.transfers[req.Reference]; seen {
		return nil, &client.APIError{StatusCode: 400, Message: "Duplicate Transaction Reference"}
	}
	status := f.transferStat
	if status == "" {
		status = "success"
	}
	result := &model.TransferResult{Reference: req.Reference, TransferCode: "TRF_1", Status: status, Amount: req.Amount}
	if f.transferErr != nil {
		// errReplyLost: the gateway took the transfer but the reply never arrived.
		if errors.Is(f.transferErr, errReplyLost) {
			f.keepTransfer(result)
		}
		return nil, f.transferErr
	}
	f.keepTransfer(result)
	return result, nil
}

func (f *fakePaystack) keepTransfer(result *model.TransferResult) {
	if f.transfers == nil {
		f.transfers = map[string]*model.TransferResult{}
	}
	f.transfers[result.Reference] = result
}

func (f *fakePaystack) VerifyTransfer(_ context.Context, reference string) (*model.TransferResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyTransfer = append(f.verifyTransfer, reference)
	result, ok := f.transfers[reference]
	if !ok {
		return nil, &client.APIError{StatusCode: 404, Message: "Transfer not found"}
	}
	return result, nil
}

func (f *fakePaystack) VerifyWebhookSignature(_ []byte, signature string) bool {
	return signature != "" && signature == f.validSig
}

type fakeEmail struct {
	mu   sync.Mutex
	err  error
	sent []*client.EmailMessage
}

func (f *fakeEmail) Send(_ context.Context, msg *client.EmailMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "email-1", nil
}

type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) Fetch(_ context.Context, key string) (*client.File, error) {
	content, ok := f.files[key]
	if !ok {
		return nil, client.ErrFileNotFound
	}
	return &client.File{Content: content, ContentType: "application/octet-stream"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

var (
	errUpstream  = errors.New("upstream down")
	errReplyLost = errors.New("context deadline exceeded while awaiting response")
)

// env wires every service over one in-memory store with fake collaborators.
type env struct {
	db          *gorm.DB
	paystack    *fakePaystack
	email       *fakeEmail
	files       *fakeFiles
	publisher   *recordingPublisher
	payments    *paymentServiceImpl
	settlement  *settlementServiceImpl
	fulfillment *fulfillmentServiceImpl
	downloads   *downloadServiceImpl
	orders      *orderServiceImpl
	payouts     *payoutServiceImpl
	notes       NotificationService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewDB(t)
	calc, err := commission.NewCalculator(decimal.RequireFromString("0.25"), 2)
	require.NoError(t, err)

	e := &env{
		db: db,
		paystack: &fakePaystack{
			verifyResult: &model.VerifyTransactionResult{Status: "success", Currency: "NGN"},
			accountName:  "ADA SELLER",
			validSig:     "good-signature",
		},
		email:     &fakeEmail{},
		files:     &fakeFiles{files: map[string][]byte{}},
		publisher: &recordingPublisher{},
	}

	orderRepo := repository.NewOrderRepository(db)
	productRepo := repository.NewProductRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	payoutProfileRepo := repository.NewPayoutProfileRepository(db)

	e.settlement = NewSettlementService(e.paystack, e.publisher,
		orderRepo, productRepo, repository.NewSplitRepository(db), payoutProfileRepo, notificationRepo,
		2,
	).(*settlementServiceImpl)
	e.downloads = NewDownloadService(e.files,
		orderRepo, productRepo, repository.NewDownloadTokenRepository(db),
		DownloadOptions{BaseURL: "https://api.example", TTL: time.Hour, GuestTTL: 72 * time.Hour},
	).(*downloadServiceImpl)
	e.fulfillment = NewFulfillmentService(db, e.email, e.publisher, e.downloads,
		orderRepo, productRepo, profileRepo, notificationRepo,
		"https://shop.example", 2,
	).(*fulfillmentServiceImpl)
	e.payments = NewPaymentService(db, e.paystack, e.publisher, calc, e.settlement, e.fulfillment,
		productRepo, orderRepo, repository.NewExchangeRateRepository(db), profileRepo,
		repository.NewWebhookEventRepository(db), notificationRepo,
		PaymentOptions{
			Currency:    "NGN",
			CallbackURL: "https://shop.example/payment/callback",
			MinorUnits:  2,
		},
	).(*paymentServiceImpl)
	e.orders = NewOrderService(db, e.email, e.publisher,
		orderRepo, productRepo, profileRepo, notificationRepo,
		"https://shop.example",
	).(*orderServiceImpl)
	e.payouts = NewPayoutService(e.paystack, e.settlement, payoutProfileRepo, "NGN").(*payoutServiceImpl)
	e.notes = NewNotificationService(notificationRepo)

	return e
}

// serializeDB funnels every query through one connection so concurrent
// callers queue on the store instead of tripping SQLite's table locks.
func serializeDB(t *testing.T, e *env) {
	t.Helper()
	sqlDB, err := e.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
}

func (e *env) seedSellerProduct(t *testing.T, id string, typ model.ProductType, price string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Product{
		ID:       id,
		SellerID: "seller-1",
		Title:    "Go Patterns",
		Price:    decimal.RequireFromString(price),
		Currency: "NGN",
		Type:     typ,
		FileURL:  "books/go-patterns.pdf",
	}).Error)
}

func (e *env) seedPlatformProduct(t *testing.T, id string, price string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.PlatformProduct{
		ID:       id,
		Title:    "Platform Guide",
		Price:    decimal.RequireFromString(price),
		Currency: "NGN",
		Type:     model.ProductTypeDigital,
		FileURL:  "guides/platform.zip",
	}).Error)
}

func (e *env) seedPayoutProfile(t *testing.T, sellerID string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.SellerPayoutProfile{
		SellerID:      sellerID,
		BankName:      "Test Bank",
		BankCode:      "058",
		AccountNumber: "0123456789",
		AccountName:   "ADA SELLER",
		VerifiedAt:    time.Now().UTC(),
	}).Error)
}

func (e *env) notifications(t *testing.T, userID string) []model.Notification {
	t.Helper()
	var notes []model.Notification
	require.NoError(t, e.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&notes).Error)
	return notes
}

func (e *env) order(t *testing.T, id string) *model.Order {
	t.Helper()
	var o model.Order
	require.NoError(t, e.db.Where("id = ?", id).First(&o).Error)
	return &o
}
