package dto

import (
	"time"

	"marketplace-settlement/internal/model"

	"github.com/shopspring/decimal"
)

// Actor is the authenticated caller, zero for guests.
type Actor struct {
	ID      string
	Email   string
	IsAdmin bool
}

func (a Actor) IsGuest() bool { return a.ID == "" }

type InitiatePaymentRequest struct {
	ProductID     string `json:"productId"`
	PaymentMethod string `json:"paymentMethod"`
	Currency      string `json:"currency"`
	DeliveryEmail string `json:"deliveryEmail"`
}

type InitiatePaymentResponse struct {
	OrderID          string          `json:"orderId"`
	Reference        string          `json:"reference"`
	AuthorizationURL string          `json:"authorizationUrl"`
	AccessCode       string          `json:"accessCode"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	GatewayAmount    int64           `json:"gatewayAmount"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference" query:"reference"`
}

type VerifyPaymentResponse struct {
	OrderID          string            `json:"orderId"`
	Reference        string            `json:"reference"`
	Status           model.OrderStatus `json:"status"`
	ProductType      model.ProductType `json:"productType"`
	TrackingNumber   string            `json:"trackingNumber,omitempty"`
	EmailSent        bool              `json:"emailSent"`
	AlreadyProcessed bool              `json:"alreadyProcessed,omitempty"`
}

type SettlementRequest struct {
	OrderID string `json:"orderId"`
}

type SettlementResponse struct {
	Split  *model.PaymentSplit `json:"split"`
	Payout model.PayoutStatus  `json:"payoutStatus"`
}

type DownloadTicket struct {
	URL       string    `json:"downloadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DownloadFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

type UpdateOrderStatusRequest struct {
	Status         model.OrderStatus `json:"status"`
	TrackingNumber string            `json:"trackingNumber"`
}

type SavePayoutAccountRequest struct {
	BankName       string `json:"bankName"`
	BankCode       string `json:"bankCode"`
	AccountNumber  string `json:"accountNumber"`
	SubaccountCode string `json:"subaccountCode"`
}

type SavePayoutAccountResponse struct {
	Account         *model.SellerPayoutProfile `json:"account"`
	PayoutsReleased int                        `json:"payoutsReleased"`
}
