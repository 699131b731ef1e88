package identifier_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/identifier"
	"restaurant-pos/internal/store/memory"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
}

func tenantCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{TenantID: "acme", Role: auth.RoleCashier})
}

func TestOrderNumberFormat(t *testing.T) {
	issuer := identifier.NewIssuer(memory.New(), fixedClock)

	got, err := issuer.OrderNumber(tenantCtx(), "downtown")
	if err != nil {
		t.Fatalf("OrderNumber returned error: %v", err)
	}
	if want := "ORD-DOWNTOWN-20260314-0001"; got != want {
		t.Fatalf("OrderNumber = %q, want %q", got, want)
	}
}

func TestInvoiceAndKOTEmbedOrderNumber(t *testing.T) {
	issuer := identifier.NewIssuer(memory.New(), fixedClock)
	ctx := tenantCtx()

	orderNumber, err := issuer.OrderNumber(ctx, "downtown")
	if err != nil {
		t.Fatalf("OrderNumber returned error: %v", err)
	}
	invoice, err := issuer.InvoiceNumber(ctx, "downtown", orderNumber)
	if err != nil {
		t.Fatalf("InvoiceNumber returned error: %v", err)
	}
	kot, err := issuer.KOTNumber(ctx, "downtown", orderNumber)
	if err != nil {
		t.Fatalf("KOTNumber returned error: %v", err)
	}

	if !strings.HasPrefix(invoice, "INV-20260314-0001-") || !strings.HasSuffix(invoice, orderNumber) {
		t.Errorf("unexpected invoice number %q", invoice)
	}
	if !strings.HasPrefix(kot, "KOT-20260314-0001-") || !strings.Contains(kot, orderNumber) {
		t.Errorf("unexpected kot number %q", kot)
	}
}

func TestConcurrentIssuanceIsDistinct(t *testing.T) {
	issuer := identifier.NewIssuer(memory.New(), fixedClock)
	ctx := tenantCtx()

	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
	)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			number, err := issuer.OrderNumber(ctx, "downtown")
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[number] {
				t.Errorf("duplicate order number %s", number)
			}
			seen[number] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("issuance failed: %v", err)
	}
	if len(seen) != n {
		t.Fatalf("issued %d distinct numbers, want %d", len(seen), n)
	}
}

func TestCountersAreScopedPerOutletAndKind(t *testing.T) {
	issuer := identifier.NewIssuer(memory.New(), fixedClock)
	ctx := tenantCtx()

	a, _ := issuer.OrderNumber(ctx, "north")
	b, _ := issuer.OrderNumber(ctx, "south")
	if !strings.HasSuffix(a, "-0001") || !strings.HasSuffix(b, "-0001") {
		t.Fatalf("expected independent counters, got %q and %q", a, b)
	}

	kot, _ := issuer.KOTNumber(ctx, "north", a)
	if !strings.HasPrefix(kot, "KOT-20260314-0001-") {
		t.Fatalf("kot counter should not share the order counter, got %q", kot)
	}
}

func TestMissingOutletIsRejected(t *testing.T) {
	issuer := identifier.NewIssuer(memory.New(), fixedClock)
	if _, err := issuer.OrderNumber(tenantCtx(), ""); err == nil {
		t.Fatal("expected error for empty outlet")
	}
}
