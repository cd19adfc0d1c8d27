// Package fefo plans first-expiry-first-out batch consumption. The plan is
// computed as a pure function over the current batch state before any write
// is issued; stores apply the resulting draws inside their own atomic
// commit.
package fefo

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/store"
)

// Draw is one planned deduction: take Quantity smallest units from the
// batch, carrying that batch's own cost basis.
type Draw struct {
	BatchID   string
	Quantity  int64
	CostBasis decimal.Decimal
}

// Plan deducts quantity smallest units across the medicine's batches,
// soonest expiry first. Expired and empty batches are skipped. If the
// usable quantity across all batches falls short, the plan fails with
// store.ErrInsufficientStock and no draw is returned.
func Plan(batches []domain.Batch, quantity int64, today time.Time) ([]Draw, error) {
	if quantity < 1 {
		return nil, store.ErrValidation
	}
	today = DateOnly(today)

	usable := make([]domain.Batch, 0, len(batches))
	for _, batch := range batches {
		if batch.QuantityInSmallestUnits < 1 {
			continue
		}
		if DateOnly(batch.ExpiryDate).Before(today) {
			continue
		}
		usable = append(usable, batch)
	}

	slices.SortStableFunc(usable, func(a, b domain.Batch) int {
		if c := a.ExpiryDate.Compare(b.ExpiryDate); c != 0 {
			return c
		}
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})

	available := int64(0)
	for _, batch := range usable {
		available += batch.QuantityInSmallestUnits
	}
	if available < quantity {
		return nil, store.ErrInsufficientStock
	}

	draws := make([]Draw, 0, 2)
	remaining := quantity
	for _, batch := range usable {
		if remaining == 0 {
			break
		}
		take := remaining
		if take > batch.QuantityInSmallestUnits {
			take = batch.QuantityInSmallestUnits
		}
		draws = append(draws, Draw{
			BatchID:   batch.ID,
			Quantity:  take,
			CostBasis: batch.PurchasePricePerUnit,
		})
		remaining -= take
	}

	return draws, nil
}

// DateOnly truncates a time to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
