package realtime

import (
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/rbac"
)

// Broadcast event types pushed to subscribed clients.
const (
	EventOrderCreated    = "order_created"
	EventOrderUpdated    = "order_updated"
	EventPaymentUpdated  = "payment_updated"
	EventLowStock        = "low_stock"
	EventSecurityAlert   = "security_alert"
	EventFinancialUpdate = "financial_update"
	EventAnalyticsUpdate = "analytics_update"
)

// OrderCreated notifies operations staff and the selling account of a new
// order.
func (g *Gateway) OrderCreated(sellerID string, data map[string]interface{}) {
	ev := envelope{Type: EventOrderCreated, Data: data}
	g.broadcast(rbac.ChannelAdminOperations, ev)
	if sellerID != "" {
		g.broadcast(personalChannel(sellerID), ev)
	}
}

// OrderUpdated notifies operations staff and the parties to the order.
func (g *Gateway) OrderUpdated(customerID, sellerID string, data map[string]interface{}) {
	ev := envelope{Type: EventOrderUpdated, Data: data}
	g.broadcast(rbac.ChannelAdminOperations, ev)
	if customerID != "" {
		g.broadcast(personalChannel(customerID), ev)
	}
	if sellerID != "" {
		g.broadcast(personalChannel(sellerID), ev)
	}
}

// PaymentUpdated notifies finance staff and the paying account.
func (g *Gateway) PaymentUpdated(customerID string, data map[string]interface{}) {
	ev := envelope{Type: EventPaymentUpdated, Data: data}
	g.broadcast(rbac.ChannelAdminFinances, ev)
	if customerID != "" {
		g.broadcast(personalChannel(customerID), ev)
	}
}

// LowStock warns the selling account and operations staff.
func (g *Gateway) LowStock(sellerID string, data map[string]interface{}) {
	ev := envelope{Type: EventLowStock, Data: data}
	g.broadcast(rbac.ChannelAdminOperations, ev)
	if sellerID != "" {
		g.broadcast(personalChannel(sellerID), ev)
	}
}

// SecurityAlert pushes a security event to the security channel and the
// shared admin channel, stamped with the severity of the underlying audit
// event type. Satisfies the session manager's notifier contract.
func (g *Gateway) SecurityAlert(event string, data map[string]interface{}) {
	ev := envelope{
		Type:     EventSecurityAlert,
		Message:  event,
		Severity: string(model.SeverityHigh),
		Data:     data,
	}
	g.broadcast(rbac.ChannelAdminSecurity, ev)
	g.broadcast(rbac.ChannelAdmin, ev)
}

// FinancialUpdate pushes aggregate financial data to finance staff.
func (g *Gateway) FinancialUpdate(data map[string]interface{}) {
	g.broadcast(rbac.ChannelAdminFinances, envelope{Type: EventFinancialUpdate, Data: data})
}

// AnalyticsUpdate pushes platform metrics to the shared admin channel.
func (g *Gateway) AnalyticsUpdate(data map[string]interface{}) {
	g.broadcast(rbac.ChannelAdmin, envelope{Type: EventAnalyticsUpdate, Data: data})
}
