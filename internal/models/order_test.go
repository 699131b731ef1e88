package models

import "testing"

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderPending, OrderConfirmed, true},
		{OrderPending, OrderCancelled, true},
		{OrderPending, OrderPreparing, false},
		{OrderConfirmed, OrderPreparing, true},
		{OrderPreparing, OrderReady, true},
		{OrderReady, OrderServed, true},
		{OrderReady, OrderCancelled, true},
		{OrderReady, OrderPending, false},
		{OrderServed, OrderCancelled, false},
		{OrderCancelled, OrderPending, false},
		{OrderMerged, OrderConfirmed, false},
		{OrderPending, OrderMerged, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("CanTransitionTo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	if _, err := ParseOrderStatus("delivered"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
	st, err := ParseOrderStatus(" ready ")
	if err != nil {
		t.Fatalf("ParseOrderStatus returned error: %v", err)
	}
	if st != OrderReady {
		t.Fatalf("got %q, want READY", st)
	}
}

func TestItemStatusAdvance(t *testing.T) {
	tests := []struct {
		from ItemStatus
		to   ItemStatus
		want bool
	}{
		{ItemPending, ItemInProgress, true},
		{ItemPending, ItemReady, true},
		{ItemInProgress, ItemPending, false},
		{ItemReady, ItemServed, true},
		{ItemReady, ItemCancelled, true},
		{ItemServed, ItemCancelled, false},
		{ItemCancelled, ItemPending, false},
		{ItemReady, ItemReady, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
			t.Errorf("%s.CanAdvanceTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTableTransitions(t *testing.T) {
	if !TableAvailable.CanTransitionTo(TableOccupied) {
		t.Error("AVAILABLE should move to OCCUPIED")
	}
	if TableOccupied.CanTransitionTo(TableAvailable) {
		t.Error("OCCUPIED must be cleaned before it is available")
	}
	if !TableCleaning.CanTransitionTo(TableAvailable) {
		t.Error("CLEANING should move to AVAILABLE")
	}
	if TableOutOfOrder.CanTransitionTo(TableOccupied) {
		t.Error("OUT_OF_ORDER cannot be occupied directly")
	}
}

func TestOutletCode(t *testing.T) {
	tests := map[string]string{
		"main":               "MAIN",
		"ab":                 "AB",
		"outlet-1":           "OUTLET1582",
		"outlet-2":           "OUTLET13EF",
		"outlet-downtown-01": "OUTLETAF39",
		"7f3a-19":            "7F3A192EC9",
		"--":                 "OUT1D0F",
	}
	for in, want := range tests {
		if got := OutletCode(in); got != want {
			t.Errorf("OutletCode(%q) = %q, want %q", in, got, want)
		}
	}
	if OutletCode("outlet-1") == OutletCode("outlet1") {
		t.Error("separator-only differences must not share a code")
	}
}

func TestKitchenRoutingKey(t *testing.T) {
	if got := KitchenRoutingKey(DineIn, PriorityUrgent); got != "kitchen.dine_in.urgent" {
		t.Fatalf("unexpected routing key %q", got)
	}
}
