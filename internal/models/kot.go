package models

import (
	"fmt"
	"strings"
	"time"
)

// KOTPriority is the urgency of a kitchen ticket.
type KOTPriority string

const (
	PriorityLow    KOTPriority = "LOW"
	PriorityNormal KOTPriority = "NORMAL"
	PriorityHigh   KOTPriority = "HIGH"
	PriorityUrgent KOTPriority = "URGENT"
)

// ParseKOTPriority validates s; an empty string yields NORMAL.
func ParseKOTPriority(s string) (KOTPriority, error) {
	if strings.TrimSpace(s) == "" {
		return PriorityNormal, nil
	}
	switch p := KOTPriority(strings.ToUpper(strings.TrimSpace(s))); p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("priority must be one of: LOW, NORMAL, HIGH, URGENT")
}

// Weight orders priorities for display and message routing.
func (p KOTPriority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 5
	case PriorityUrgent:
		return 10
	default:
		return 3
	}
}

// KOTItem mirrors an order item with its own preparation status.
type KOTItem struct {
	ID                  string     `json:"id"`
	KOTID               string     `json:"kot_id"`
	OrderItemID         string     `json:"order_item_id"`
	MenuItemID          string     `json:"menu_item_id"`
	Name                string     `json:"name"`
	Quantity            int        `json:"quantity"`
	SpecialInstructions *string    `json:"special_instructions,omitempty"`
	Status              ItemStatus `json:"status"`
}

// KOT is a kitchen order ticket.
type KOT struct {
	ID                      string      `json:"id"`
	KOTNumber               string      `json:"kot_number"`
	OutletID                string      `json:"outlet_id"`
	OrderID                 string      `json:"order_id"`
	OrderNumber             string      `json:"order_number"`
	TableID                 *string     `json:"table_id,omitempty"`
	OrderType               OrderType   `json:"order_type"`
	Items                   []KOTItem   `json:"items"`
	Priority                KOTPriority `json:"priority"`
	Status                  ItemStatus  `json:"status"`
	Notes                   *string     `json:"notes,omitempty"`
	EstimatedCompletionTime time.Time   `json:"estimated_completion_time"`
	AssignedTo              *string     `json:"assigned_to,omitempty"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
	StartedAt               *time.Time  `json:"started_at,omitempty"`
	CompletedAt             *time.Time  `json:"completed_at,omitempty"`
}

// KOTOrderBy names the sort key of a kitchen display query.
type KOTOrderBy string

const (
	KOTOrderByCreatedAt  KOTOrderBy = "created_at"
	KOTOrderByPriority   KOTOrderBy = "priority"
	KOTOrderByEstimation KOTOrderBy = "estimated_completion_time"
)

// ParseKOTOrderBy validates s; an empty string yields created_at.
func ParseKOTOrderBy(s string) (KOTOrderBy, error) {
	switch o := KOTOrderBy(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return KOTOrderByCreatedAt, nil
	case KOTOrderByCreatedAt, KOTOrderByPriority, KOTOrderByEstimation:
		return o, nil
	}
	return "", fmt.Errorf("order_by must be one of: created_at, priority, estimated_completion_time")
}

// KOTFilter selects tickets for the kitchen display.
type KOTFilter struct {
	OutletID   string
	Statuses   []ItemStatus
	CreatedGTE *time.Time
	OrderBy    KOTOrderBy
	Desc       bool
	Limit      int
}

// ActiveKOTStatuses are the statuses of tickets not yet served or cancelled.
var ActiveKOTStatuses = []ItemStatus{ItemPending, ItemInProgress, ItemReady}

// KitchenStatistics summarises ticket throughput of an outlet.
type KitchenStatistics struct {
	OutletID                  string             `json:"outlet_id"`
	Since                     time.Time          `json:"since"`
	TotalKOTs                 int                `json:"total_kots"`
	ByStatus                  map[ItemStatus]int `json:"by_status"`
	Overdue                   int                `json:"overdue"`
	AveragePreparationMinutes float64            `json:"average_preparation_minutes"`
}
