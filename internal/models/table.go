package models

import (
	"fmt"
	"strings"
	"time"
)

// TableStatus is the physical state of a table.
type TableStatus string

const (
	TableAvailable  TableStatus = "AVAILABLE"
	TableOccupied   TableStatus = "OCCUPIED"
	TableCleaning   TableStatus = "CLEANING"
	TableReserved   TableStatus = "RESERVED"
	TableOutOfOrder TableStatus = "OUT_OF_ORDER"
)

// tableTransitions covers direct status updates. AVAILABLE→OCCUPIED goes through
// assignment and OCCUPIED→CLEANING through release; both are listed so the
// coordinator can check them with the same table.
var tableTransitions = map[TableStatus][]TableStatus{
	TableAvailable:  {TableOccupied, TableReserved, TableOutOfOrder},
	TableOccupied:   {TableCleaning},
	TableCleaning:   {TableAvailable, TableOutOfOrder},
	TableReserved:   {TableAvailable, TableOutOfOrder},
	TableOutOfOrder: {TableAvailable},
}

// ParseTableStatus validates s against the table status vocabulary.
func ParseTableStatus(s string) (TableStatus, error) {
	switch st := TableStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case TableAvailable, TableOccupied, TableCleaning, TableReserved, TableOutOfOrder:
		return st, nil
	}
	return "", fmt.Errorf("status must be one of: AVAILABLE, OCCUPIED, CLEANING, RESERVED, OUT_OF_ORDER")
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s TableStatus) CanTransitionTo(next TableStatus) bool {
	for _, candidate := range tableTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Table is a physical table in an outlet.
type Table struct {
	ID             string      `json:"id"`
	OutletID       string      `json:"outlet_id"`
	TableNumber    string      `json:"table_number"`
	Capacity       int         `json:"capacity"`
	Section        *string     `json:"section,omitempty"`
	Status         TableStatus `json:"status"`
	CurrentOrderID *string     `json:"current_order_id,omitempty"`
	PartySize      *int        `json:"party_size,omitempty"`
	OccupiedAt     *time.Time  `json:"occupied_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableStatistics summarises table usage in an outlet.
type TableStatistics struct {
	OutletID      string              `json:"outlet_id"`
	TotalTables   int                 `json:"total_tables"`
	ByStatus      map[TableStatus]int `json:"by_status"`
	TotalCapacity int                 `json:"total_capacity"`
	SeatedGuests  int                 `json:"seated_guests"`
	OccupancyRate float64             `json:"occupancy_rate"`
}
