package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"marketplace-settlement/internal/config"
	"marketplace-settlement/internal/model"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var ErrPaystack = errors.New("paystack request failed")

// APIError is an answer from Paystack itself, as opposed to a transport failure.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status=%d message=%s", ErrPaystack, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return ErrPaystack }

// IsRejected reports whether Paystack refused the request (4xx, or status
// false on a 2xx). Timeouts and 5xx replies are not rejections.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError
}

// IsDuplicateReference reports a transfer refused because its reference was
// already used by an earlier transfer.
func IsDuplicateReference(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !IsRejected(err) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "duplicate") ||
		(strings.Contains(msg, "reference") && strings.Contains(msg, "already"))
}

type PaystackClient interface {
	InitializeTransaction(ctx context.Context, req *model.InitializeTransactionRequest) (*model.InitializeTransactionResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*model.VerifyTransactionResult, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*model.ResolveAccountResult, error)
	ListBanks(ctx context.Context, currency string) ([]model.Bank, error)
	CreateTransferRecipient(ctx context.Context, req *model.CreateRecipientRequest) (*model.TransferRecipient, error)
	InitiateTransfer(ctx context.Context, req *model.InitiateTransferRequest) (*model.TransferResult, error)
	VerifyTransfer(ctx context.Context, reference string) (*model.TransferResult, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

type paystackClientImpl struct {
	http      *resty.Client
	secretKey string
}

func NewPaystackClient(cfg *config.Paystack) PaystackClient {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseApiURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &paystackClientImpl{
		http:      httpClient,
		secretKey: cfg.SecretKey,
	}
}

func (c *paystackClientImpl) InitializeTransaction(ctx context.Context, req *model.InitializeTransactionRequest) (*model.InitializeTransactionResult, error) {
	var result model.InitializeTransactionResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, nil, &result); err != nil {
		return nil, fmt.Errorf("initialize transaction: %w", err)
	}
	if result.AuthorizationURL == "" {
		return nil, fmt.Errorf("initialize transaction: %w: empty authorization_url", ErrPaystack)
	}
	return &result, nil
}

func (c *paystackClientImpl) VerifyTransaction(ctx context.Context, reference string) (*model.VerifyTransactionResult, error) {
	var result model.VerifyTransactionResult
	path := "/transaction/verify/" + reference
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &result); err != nil {
		return nil, fmt.Errorf("verify transaction %s: %w", reference, err)
	}
	return &result, nil
}

func (c *paystackClientImpl) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*model.ResolveAccountResult, error) {
	var result model.ResolveAccountResult
	query := map[string]string{
		"account_number": accountNumber,
		"bank_code":      bankCode,
	}
	if err := c.do(ctx, http.MethodGet, "/bank/resolve", nil, query, &result); err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	if result.AccountName == "" {
		return nil, fmt.Errorf("resolve account: %w: empty account_name", ErrPaystack)
	}
	return &result, nil
}

func (c *paystackClientImpl) ListBanks(ctx context.Context, currency string) ([]model.Bank, error) {
	var banks []model.Bank
	query := map[string]string{"perPage": "100"}
	if currency != "" {
		query["currency"] = currency
	}
	if err := c.do(ctx, http.MethodGet, "/bank", nil, query, &banks); err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	return banks, nil
}

func (c *paystackClientImpl) CreateTransferRecipient(ctx context.Context, req *model.CreateRecipientRequest) (*model.TransferRecipient, error) {
	var result model.TransferRecipient
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", req, nil, &result); err != nil {
		return nil, fmt.Errorf("create transfer recipient: %w", err)
	}
	if result.RecipientCode == "" {
		return nil, fmt.Errorf("create transfer recipient: %w: empty recipient_code", ErrPaystack)
	}
	return &result, nil
}

func (c *paystackClientImpl) InitiateTransfer(ctx context.Context, req *model.InitiateTransferRequest) (*model.TransferResult, error) {
	var result model.TransferResult
	if err := c.do(ctx, http.MethodPost, "/transfer", req, nil, &result); err != nil {
		return nil, fmt.Errorf("initiate transfer %s: %w", req.Reference, err)
	}
	return &result, nil
}

func (c *paystackClientImpl) VerifyTransfer(ctx context.Context, reference string) (*model.TransferResult, error) {
	var result model.TransferResult
	if err := c.do(ctx, http.MethodGet, "/transfer/verify/"+reference, nil, nil, &result); err != nil {
		return nil, fmt.Errorf("verify transfer %s: %w", reference, err)
	}
	return &result, nil
}

// VerifyWebhookSignature checks x-paystack-signature, the hex HMAC-SHA512 of
// the raw body keyed with the secret key.
func (c *paystackClientImpl) VerifyWebhookSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *paystackClientImpl) do(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	var envelope model.PaystackEnvelope

	req := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		SetError(&envelope)
	if body != nil {
		req.SetBody(body)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPaystack, err)
	}

	if resp.IsError() || !envelope.Status {
		msg := envelope.Message
		if msg == "" {
			msg = resp.String()
		}
		return &APIError{StatusCode: resp.StatusCode(), Message: msg}
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", ErrPaystack, err)
	}
	return nil
}
