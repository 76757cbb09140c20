package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joao-fontenele/tableflow/internal/domain"
)

var statusPriority = map[domain.OrderStatus]domain.Priority{
	domain.OrderStatusConfirmed: domain.PriorityMedium,
	domain.OrderStatusPreparing: domain.PriorityMedium,
	domain.OrderStatusReady:     domain.PriorityHigh,
	domain.OrderStatusDelivered: domain.PriorityLow,
}

// StatusPriority maps an order status to the priority of its update alert.
func StatusPriority(s domain.OrderStatus) domain.Priority {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return domain.PriorityMedium
}

func (b *Bus) NotifyWaiterRequest(tableID, message string) domain.Notification {
	return b.Notify(WaiterRequestAlert(tableID, message))
}

// WaiterRequestAlert builds the notification NotifyWaiterRequest emits.
func WaiterRequestAlert(tableID, message string) domain.Notification {
	return domain.Notification{
		Type:     domain.NotificationWaiterRequest,
		Title:    fmt.Sprintf("Table %s Needs Assistance", tableID),
		Message:  message,
		TableID:  tableID,
		Priority: domain.PriorityHigh,
		Data:     map[string]any{"table_id": tableID, "message": message},
	}
}

func (b *Bus) NotifyNewOrder(tableID string, orderID int64, total decimal.Decimal) domain.Notification {
	return b.Notify(NewOrderAlert(tableID, orderID, total))
}

func NewOrderAlert(tableID string, orderID int64, total decimal.Decimal) domain.Notification {
	return domain.Notification{
		Type:     domain.NotificationNewOrder,
		Title:    fmt.Sprintf("New Order from Table %s", tableID),
		Message:  fmt.Sprintf("Order #%d - %s", orderID, FormatAmount(total)),
		TableID:  tableID,
		OrderID:  orderID,
		Priority: domain.PriorityUrgent,
		Data:     map[string]any{"table_id": tableID, "order_id": orderID, "total": total.String()},
	}
}

func (b *Bus) NotifyOrderStatus(tableID string, orderID int64, status domain.OrderStatus, message string) domain.Notification {
	return b.Notify(OrderStatusAlert(tableID, orderID, status, message))
}

func OrderStatusAlert(tableID string, orderID int64, status domain.OrderStatus, message string) domain.Notification {
	return domain.Notification{
		Type:     domain.NotificationOrderStatus,
		Title:    fmt.Sprintf("Order #%d Status Update", orderID),
		Message:  message,
		TableID:  tableID,
		OrderID:  orderID,
		Priority: StatusPriority(status),
		Data:     map[string]any{"table_id": tableID, "order_id": orderID, "status": string(status)},
	}
}

func (b *Bus) NotifyPaymentSuccess(tableID string, orderID int64, method domain.PaymentMethod, amount decimal.Decimal) domain.Notification {
	return b.Notify(domain.Notification{
		Type:     domain.NotificationPaymentSuccess,
		Title:    fmt.Sprintf("Payment Successful - Table %s", tableID),
		Message:  fmt.Sprintf("%s payment of %s completed", method.Display(), FormatAmount(amount)),
		TableID:  tableID,
		OrderID:  orderID,
		Priority: domain.PriorityMedium,
		Data: map[string]any{
			"table_id":       tableID,
			"order_id":       orderID,
			"payment_method": string(method),
			"amount":         amount.String(),
		},
	})
}

// StatusChangeMessage is the message used for order status notifications.
func StatusChangeMessage(orderID int64, tableID string, from, to domain.OrderStatus) string {
	return fmt.Sprintf("Order #%d for Table %s moved from %s to %s", orderID, tableID, from, to)
}

// NotifyServiceAlert tells the kitchen that a table called a waiter while its
// order is in progress.
func (b *Bus) NotifyServiceAlert(tableID string) domain.Notification {
	return b.Notify(domain.Notification{
		Type:     domain.NotificationWaiterRequest,
		Title:    fmt.Sprintf("Service Alert - Table %s", tableID),
		Message:  "Customer called waiter - May affect order timing",
		TableID:  tableID,
		Priority: domain.PriorityHigh,
		Data:     map[string]any{"table_id": tableID, "source": "customer_call", "alert_kitchen": true},
	})
}

// FormatAmount renders a UGX amount with thousands separators, e.g. "UGX 15,000".
func FormatAmount(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign, d = "-", d.Neg()
	}
	out := message.NewPrinter(language.English).Sprintf("%d", d.IntPart())
	if _, frac, ok := strings.Cut(d.String(), "."); ok {
		out += "." + frac
	}
	return domain.CurrencyUGX + " " + sign + out
}
