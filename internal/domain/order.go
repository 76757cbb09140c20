package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMTNMoMo     PaymentMethod = "mtn_momo"
	PaymentAirtelMoney PaymentMethod = "airtel_money"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentMTNMoMo, PaymentAirtelMoney:
		return true
	}
	return false
}

// MobileMoney reports whether the method goes through a mobile-money network
// and therefore needs a payer phone number.
func (m PaymentMethod) MobileMoney() bool {
	return m == PaymentMTNMoMo || m == PaymentAirtelMoney
}

func (m PaymentMethod) Display() string {
	switch m {
	case PaymentCash:
		return "Cash on Delivery"
	case PaymentMTNMoMo:
		return "MTN Mobile Money"
	case PaymentAirtelMoney:
		return "Airtel Money"
	}
	return string(m)
}

type OrderItem struct {
	Item           string          `json:"item"`
	Quantity       int             `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	SpecialRequest string          `json:"special_request,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

// TableOrder is an order placed from a restaurant table, as held by the remote store.
type TableOrder struct {
	ID                   int64           `json:"id"`
	Table                string          `json:"table"`
	Items                []OrderItem     `json:"items"`
	Total                decimal.Decimal `json:"total_price"`
	Status               OrderStatus     `json:"status"`
	PaymentMethod        PaymentMethod   `json:"payment_method"`
	PaymentMethodDisplay string          `json:"payment_method_display,omitempty"`
	Reference            string          `json:"reference,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Validate checks that every subtotal is price times quantity and that the
// total is the sum of the subtotals.
func (o TableOrder) Validate() error {
	sum := decimal.Zero
	for i, item := range o.Items {
		want := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if !item.Subtotal.Equal(want) {
			return fmt.Errorf("item %d (%s): subtotal %s, expected %s", i, item.Item, item.Subtotal, want)
		}
		sum = sum.Add(item.Subtotal)
	}
	if !o.Total.Equal(sum) {
		return fmt.Errorf("order total %s does not match item subtotals %s", o.Total, sum)
	}
	return nil
}

type SubmissionItem struct {
	MenuItemID      int64           `json:"menu_item_id"`
	Name            string          `json:"name,omitempty"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	SpecialRequests string          `json:"special_requests,omitempty"`
}

// OrderSubmission is the create-order payload accepted by the remote store.
type OrderSubmission struct {
	TableID       string           `json:"table_id"`
	Items         []SubmissionItem `json:"items"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	Status        OrderStatus      `json:"status"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	CustomerEmail string           `json:"customer_email"`
	Reference     string           `json:"reference"`
}
