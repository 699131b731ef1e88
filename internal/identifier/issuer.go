// Package identifier issues order, invoice and KOT numbers.
//
// Uniqueness comes from a per-(outlet, kind, day) counter provided by a
// Sequencer, never from the wall clock.
package identifier

import (
	"context"
	"fmt"
	"time"

	"restaurant-pos/internal/models"
)

// Kind names an identifier family. Each family has its own counter.
type Kind string

const (
	KindOrder   Kind = "ORDER"
	KindInvoice Kind = "INVOICE"
	KindKOT     Kind = "KOT"
)

// Sequencer hands out strictly increasing values per (outlet, kind, day).
type Sequencer interface {
	NextSequence(ctx context.Context, outletID string, kind Kind, day time.Time) (int64, error)
}

// Issuer formats identifiers around a Sequencer.
type Issuer struct {
	seq Sequencer
	now func() time.Time
}

// NewIssuer creates an issuer. A nil now defaults to time.Now in UTC.
func NewIssuer(seq Sequencer, now func() time.Time) *Issuer {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Issuer{seq: seq, now: now}
}

// OrderNumber returns ORD-<OUTLET>-<YYYYMMDD>-<NNNN>.
func (i *Issuer) OrderNumber(ctx context.Context, outletID string) (string, error) {
	day, n, err := i.next(ctx, outletID, KindOrder)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%s-%04d", models.OutletCode(outletID), day, n), nil
}

// InvoiceNumber returns INV-<YYYYMMDD>-<NNNN>-<orderNumber>.
func (i *Issuer) InvoiceNumber(ctx context.Context, outletID, orderNumber string) (string, error) {
	day, n, err := i.next(ctx, outletID, KindInvoice)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%04d-%s", day, n, orderNumber), nil
}

// KOTNumber returns KOT-<YYYYMMDD>-<NNNN>-<orderNumber>.
func (i *Issuer) KOTNumber(ctx context.Context, outletID, orderNumber string) (string, error) {
	day, n, err := i.next(ctx, outletID, KindKOT)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("KOT-%s-%04d-%s", day, n, orderNumber), nil
}

func (i *Issuer) next(ctx context.Context, outletID string, kind Kind) (string, int64, error) {
	if outletID == "" {
		return "", 0, fmt.Errorf("issue %s number: outlet id is required", kind)
	}
	now := i.now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n, err := i.seq.NextSequence(ctx, outletID, kind, day)
	if err != nil {
		return "", 0, fmt.Errorf("issue %s number: %w", kind, err)
	}
	return day.Format("20060102"), n, nil
}
