package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("items cannot be empty"), KindValidation},
		{"field validation", FieldValidation("items[0].quantity", "must be at least 1"), KindValidation},
		{"not found", NotFound("order", "42"), KindNotFound},
		{"database", Database("insert order", cause), KindDatabase},
		{"wrapped", fmt.Errorf("create order: %w", NotFound("table", "7")), KindNotFound},
		{"plain", cause, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDatabaseUnwrap(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := fmt.Errorf("process payment: %w", Database("mark order paid", cause))

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through errors.Is")
	}
	if !IsDatabase(err) {
		t.Fatalf("expected database kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := FieldValidation("order_type", "must be one of %s", "DINE_IN, TAKEAWAY, DELIVERY")
	if got, want := err.Error(), "order_type: must be one of DINE_IN, TAKEAWAY, DELIVERY"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
