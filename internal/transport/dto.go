package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Skotchmaster/shop_checkout/internal/models"
)

type CheckoutItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int64     `json:"quantity"`
	Note      string    `json:"note,omitempty"`
}

// CheckoutRequest selects at most one discount: FinalPrice wins over PromoCodes.
type CheckoutRequest struct {
	Email             string         `json:"email"`
	Items             []CheckoutItem `json:"items"`
	FinalPrice        *int64         `json:"finalPrice,omitempty"`
	PromoCodes        []string       `json:"promoCodes,omitempty"`
	BillingAddressID  string         `json:"billingAddressId"`
	ShippingAddressID string         `json:"shippingAddressId"`
}

type SessionDescriptor struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	OrderID   uuid.UUID `json:"orderId"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

type PromoCodeRequest struct {
	Code       string          `json:"code"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	ExpiryDate *time.Time      `json:"expiryDate,omitempty"`
}

// PromoCodeUpdate changes only the fields that are set.
type PromoCodeUpdate struct {
	Code        *string          `json:"code,omitempty"`
	Type        *string          `json:"type,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	ExpiryDate  *time.Time       `json:"expiryDate,omitempty"`
	ClearExpiry bool             `json:"clearExpiry,omitempty"`
}

type ApplyResult struct {
	Code           string `json:"code"`
	OriginalAmount int64  `json:"originalAmount"`
	Discount       int64  `json:"discount"`
	FinalAmount    int64  `json:"finalAmount"`
}

type CartItemRequest struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int64     `json:"quantity"`
	Note      string    `json:"note,omitempty"`
}

// ListQuery is the common filter, sort and paging contract of list endpoints.
type ListQuery struct {
	Page      int    `query:"page"`
	Limit     int    `query:"limit"`
	SortField string `query:"sortField"`
	SortOrder string `query:"sortOrder"`
	Status    string `query:"status"`
	Search    string `query:"search"`
	DateFrom  string `query:"dateFrom"`
	DateTo    string `query:"dateTo"`
	Expand    bool   `query:"expand"`
}

type Page[T any] struct {
	Items       []T   `json:"items"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int   `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
}

type OrderLine struct {
	models.OrderItem
	Image string `json:"image,omitempty"`
}

type OrderDetail struct {
	models.Order
	Lines      []OrderLine `json:"items"`
	ReceiptURL string      `json:"receiptUrl"`
}
