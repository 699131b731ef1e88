package models

import (
	"fmt"
	"strings"
	"time"
)

// KitchenTicketMessage represents a ticket sent to kitchen printers and displays
type KitchenTicketMessage struct {
	Tenant                  string      `json:"tenant"`
	KOTNumber               string      `json:"kot_number"`
	OrderNumber             string      `json:"order_number"`
	OutletID                string      `json:"outlet_id"`
	OrderType               OrderType   `json:"order_type"`
	TableID                 *string     `json:"table_id,omitempty"`
	Items                   []KOTItem   `json:"items"`
	Priority                KOTPriority `json:"priority"`
	Notes                   *string     `json:"notes,omitempty"`
	EstimatedCompletionTime time.Time   `json:"estimated_completion_time"`
}

// StatusUpdateMessage represents a status change notification
type StatusUpdateMessage struct {
	Tenant              string     `json:"tenant"`
	Entity              string     `json:"entity"`
	Number              string     `json:"number"`
	OldStatus           string     `json:"old_status"`
	NewStatus           string     `json:"new_status"`
	ChangedBy           string     `json:"changed_by"`
	Timestamp           time.Time  `json:"timestamp"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
}

// Entities carried by StatusUpdateMessage.
const (
	EntityOrder   = "order"
	EntityKOT     = "kot"
	EntityPayment = "payment"
	EntityTable   = "table"
)

// NewKitchenTicketMessage builds the routed form of a ticket.
func NewKitchenTicketMessage(tenant string, k *KOT) *KitchenTicketMessage {
	return &KitchenTicketMessage{
		Tenant:                  tenant,
		KOTNumber:               k.KOTNumber,
		OrderNumber:             k.OrderNumber,
		OutletID:                k.OutletID,
		OrderType:               k.OrderType,
		TableID:                 k.TableID,
		Items:                   k.Items,
		Priority:                k.Priority,
		Notes:                   k.Notes,
		EstimatedCompletionTime: k.EstimatedCompletionTime,
	}
}

// NewStatusUpdateMessage creates a StatusUpdateMessage stamped with the current time
func NewStatusUpdateMessage(tenant, entity, number, oldStatus, newStatus, changedBy string, estimatedCompletion *time.Time) *StatusUpdateMessage {
	return &StatusUpdateMessage{
		Tenant:              tenant,
		Entity:              entity,
		Number:              number,
		OldStatus:           oldStatus,
		NewStatus:           newStatus,
		ChangedBy:           changedBy,
		Timestamp:           time.Now().UTC(),
		EstimatedCompletion: estimatedCompletion,
	}
}

// KitchenRoutingKey generates the routing key for ticket messages
func KitchenRoutingKey(orderType OrderType, priority KOTPriority) string {
	return fmt.Sprintf("kitchen.%s.%s", strings.ToLower(string(orderType)), strings.ToLower(string(priority)))
}
