package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeDigital  ProductType = "digital"
	ProductTypePhysical ProductType = "physical"
)

type ProductKind string

const (
	ProductKindSeller   ProductKind = "seller"
	ProductKindPlatform ProductKind = "platform"
)

// Product is a listing owned by a third-party seller.
type Product struct {
	ID        string          `gorm:"primaryKey;size:64;not null"`
	SellerID  string          `gorm:"size:64;index;not null"`
	Title     string          `gorm:"size:255;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency  string          `gorm:"size:8;not null"`
	Type      ProductType     `gorm:"size:16;index;not null"`
	FileURL   string          `gorm:"size:512"` // storage object key, never sent to clients
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlatformProduct is a listing sold by the platform itself.
type PlatformProduct struct {
	ID        string          `gorm:"primaryKey;size:64;not null"`
	Title     string          `gorm:"size:255;not null"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency  string          `gorm:"size:8;not null"`
	Type      ProductType     `gorm:"size:16;index;not null"`
	FileURL   string          `gorm:"size:512"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Listing is the resolved view of either product collection.
type Listing struct {
	ID       string
	Kind     ProductKind
	SellerID string // empty for platform listings
	Title    string
	Price    decimal.Decimal
	Currency string
	Type     ProductType
	FileURL  string
}

func (l *Listing) IsDigital() bool { return l.Type == ProductTypeDigital }

func (p *Product) Listing() *Listing {
	return &Listing{
		ID: p.ID, Kind: ProductKindSeller, SellerID: p.SellerID, Title: p.Title,
		Price: p.Price, Currency: p.Currency, Type: p.Type, FileURL: p.FileURL,
	}
}

func (p *PlatformProduct) Listing() *Listing {
	return &Listing{
		ID: p.ID, Kind: ProductKindPlatform, Title: p.Title,
		Price: p.Price, Currency: p.Currency, Type: p.Type, FileURL: p.FileURL,
	}
}

type Profile struct {
	ID        string `gorm:"primaryKey;size:64;not null"`
	Email     string `gorm:"size:255"`
	FullName  string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SellerPayoutProfile is a seller's gateway-verified bank destination.
// AccountName always comes from the gateway's resolve call.
type SellerPayoutProfile struct {
	SellerID       string    `gorm:"primaryKey;size:64;not null" json:"sellerId"`
	BankName       string    `gorm:"size:128;not null" json:"bankName"`
	BankCode       string    `gorm:"size:32;not null" json:"bankCode"`
	AccountNumber  string    `gorm:"size:32;not null" json:"accountNumber"`
	AccountName    string    `gorm:"size:255;not null" json:"accountName"`
	SubaccountCode string    `gorm:"size:64" json:"subaccountCode,omitempty"`
	RecipientCode  string    `gorm:"size:64" json:"-"`
	VerifiedAt     time.Time `json:"verifiedAt"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (p *SellerPayoutProfile) IsComplete() bool {
	return p != nil && p.BankCode != "" && p.AccountNumber != "" && p.AccountName != ""
}

type PayoutStatus string

const (
	PayoutStatusPending     PayoutStatus = "pending"
	PayoutStatusProcessing  PayoutStatus = "processing"
	PayoutStatusPaid        PayoutStatus = "paid"
	PayoutStatusDeferred    PayoutStatus = "deferred" // seller has no payout details yet
	PayoutStatusFailed      PayoutStatus = "failed"
	PayoutStatusNotRequired PayoutStatus = "not_required"
)

// PayoutClaimable lists the statuses a settlement run may pick a payout up from.
var PayoutClaimable = []PayoutStatus{PayoutStatusPending, PayoutStatusDeferred, PayoutStatusFailed}

type PaymentSplit struct {
	ID                string          `gorm:"primaryKey;size:64;not null" json:"id"`
	OrderID           string          `gorm:"size:64;uniqueIndex;not null" json:"orderId"`
	BuyerID           string          `gorm:"size:64;index" json:"buyerId,omitempty"`
	SellerID          string          `gorm:"size:64;index" json:"sellerId,omitempty"`
	ProductID         string          `gorm:"size:64;not null" json:"productId"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"totalAmount"`
	PlatformAmount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"platformAmount"`
	SellerAmount      decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"sellerAmount"`
	PlatformPaid      bool            `gorm:"not null;default:false" json:"platformPaid"`
	SellerPaid        bool            `gorm:"not null;default:false" json:"sellerPaid"`
	PlatformReference string          `gorm:"size:64" json:"platformReference"`
	SellerReference   string          `gorm:"size:64" json:"sellerReference,omitempty"`
	PayoutStatus      PayoutStatus    `gorm:"size:16;index;not null" json:"payoutStatus"`
	PayoutAttempts    int             `gorm:"not null;default:0" json:"payoutAttempts"`
	PayoutError       string          `gorm:"size:512" json:"payoutError,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type NotificationType string

const (
	NotificationOrderConfirmed NotificationType = "order_confirmed"
	NotificationDelivered      NotificationType = "delivered"
	NotificationShipped        NotificationType = "shipped"
	NotificationCancelled      NotificationType = "cancelled"
	NotificationPayoutPending  NotificationType = "payout_pending"
	NotificationPayoutSent     NotificationType = "payout_sent"
)

type Notification struct {
	ID        string           `gorm:"primaryKey;size:64;not null" json:"id"`
	OrderID   string           `gorm:"size:64;index" json:"orderId,omitempty"`
	UserID    string           `gorm:"size:64;index;not null" json:"userId"`
	Type      NotificationType `gorm:"size:32;not null" json:"type"`
	Title     string           `gorm:"size:255;not null" json:"title"`
	Message   string           `gorm:"size:1024;not null" json:"message"`
	IsRead    bool             `gorm:"not null;default:false" json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

type DownloadToken struct {
	Token     string    `gorm:"primaryKey;size:64;not null"`
	OrderID   string    `gorm:"size:64;index;not null"`
	UserID    string    `gorm:"size:64;not null"`
	Email     string    `gorm:"size:255"` // set instead of UserID for guest orders
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

// ExchangeRate converts one unit of BaseCurrency into Rate units of QuoteCurrency.
type ExchangeRate struct {
	BaseCurrency  string          `gorm:"primaryKey;size:8;not null"`
	QuoteCurrency string          `gorm:"primaryKey;size:8;not null"`
	Rate          decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	UpdatedAt     time.Time
}

type WebhookEvent struct {
	EventID     string `gorm:"primaryKey;size:128;not null"`
	EventType   string `gorm:"size:64;index"`
	ProcessedAt time.Time
	CreatedAt   time.Time
}
