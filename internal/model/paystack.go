package model

import "encoding/json"

// PaystackEnvelope is the {status, message, data} wrapper every gateway response uses.
type PaystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type InitializeTransactionRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"` // minor units
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Channels    []string          `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitializeTransactionResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type PaystackCustomer struct {
	Email        string `json:"email"`
	CustomerCode string `json:"customer_code"`
}

type VerifyTransactionResult struct {
	ID              int64            `json:"id"`
	Status          string           `json:"status"` // success, failed, abandoned, ...
	Reference       string           `json:"reference"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	GatewayResponse string           `json:"gateway_response"`
	PaidAt          string           `json:"paid_at"`
	Customer        PaystackCustomer `json:"customer"`
}

func (r *VerifyTransactionResult) Succeeded() bool { return r != nil && r.Status == "success" }

type ResolveAccountResult struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int64  `json:"bank_id"`
}

type Bank struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
	Active   bool   `json:"active"`
}

type CreateRecipientRequest struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Currency      string `json:"currency"`
}

type TransferRecipient struct {
	RecipientCode string `json:"recipient_code"`
	Name          string `json:"name"`
	Active        bool   `json:"active"`
}

type InitiateTransferRequest struct {
	Source    string `json:"source"`
	Amount    int64  `json:"amount"` // minor units
	Recipient string `json:"recipient"`
	Reference string `json:"reference"`
	Reason    string `json:"reason,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type TransferResult struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"` // success, pending, otp, failed, ...
	Amount       int64  `json:"amount"`
}

// Accepted reports whether the gateway took the transfer. Paystack answers
// "pending" while a transfer is queued; only "failed"/"reversed" are refusals.
func (r *TransferResult) Accepted() bool {
	if r == nil {
		return false
	}
	switch r.Status {
	case "success", "pending", "processing":
		return true
	}
	return false
}

type PaystackWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}
