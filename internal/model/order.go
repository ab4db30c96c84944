package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward; terminal statuses have no outgoing edges.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourcesOf lists every status that may transition into to.
func SourcesOf(to OrderStatus) []OrderStatus {
	var out []OrderStatus
	for _, from := range []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusDelivered || s == OrderStatusCancelled
}

// IsPaid reports whether the gateway has confirmed payment for an order in this status.
func (s OrderStatus) IsPaid() bool {
	switch s {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}

// DownloadableStatuses is the paid terminal set a digital file may be fetched in.
var DownloadableStatuses = []OrderStatus{OrderStatusPaid, OrderStatusCompleted, OrderStatusDelivered}

func (s OrderStatus) IsDownloadable() bool {
	for _, d := range DownloadableStatuses {
		if s == d {
			return true
		}
	}
	return false
}

type Order struct {
	ID               string          `gorm:"primaryKey;size:64;not null" json:"id"`
	ProductID        string          `gorm:"size:64;index;not null" json:"productId"`
	ProductKind      ProductKind     `gorm:"size:16;not null" json:"productKind"`
	BuyerID          string          `gorm:"size:64;index" json:"buyerId,omitempty"` // empty for guests
	BuyerEmail       string          `gorm:"size:255" json:"-"`                      // account email at checkout
	DeliveryEmail    string          `gorm:"size:255" json:"deliveryEmail,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency         string          `gorm:"size:8;not null" json:"currency"`
	ExchangeRate     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"exchangeRate"`
	GatewayAmount    int64           `gorm:"not null" json:"gatewayAmount"` // minor units of Currency
	PaymentMethod    string          `gorm:"size:32" json:"paymentMethod"`
	PaymentGateway   string          `gorm:"size:32;not null" json:"paymentGateway"`
	GatewayReference string          `gorm:"size:64;uniqueIndex;not null" json:"gatewayReference"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"commissionRate"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"commissionAmount"`
	SellerAmount     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"sellerAmount"`
	Status           OrderStatus     `gorm:"size:32;index;not null" json:"status"`
	TrackingNumber   string          `gorm:"size:64" json:"trackingNumber,omitempty"`
	ShippedAt        *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt      *time.Time      `json:"deliveredAt,omitempty"`
	EmailSent        bool            `gorm:"not null;default:false" json:"emailSent"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}
