package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// AvailabilityResult reports whether every outbound line can be served.
type AvailabilityResult struct {
	Valid     bool
	Shortages []Shortage
}

// ValidateAvailability aggregates the outbound (negative) lines per item and
// compares each total with the stock at asOf. Positive lines never offset
// outbound demand. Stock is fetched with a single batch query.
//
// Shortages are returned in order of the item's first outbound line.
// ItemName and ItemCode are left empty; the pipeline fills them in.
func (l *Ledger) ValidateAvailability(ctx context.Context, lines []TxLine, asOf Date) (AvailabilityResult, error) {
	required := make(map[ItemID]decimal.Decimal)
	var order []ItemID
	for _, line := range lines {
		if !line.Quantity.IsNegative() {
			continue
		}
		if _, ok := required[line.ItemID]; !ok {
			order = append(order, line.ItemID)
		}
		required[line.ItemID] = required[line.ItemID].Add(line.Quantity.Abs())
	}
	if len(order) == 0 {
		return AvailabilityResult{Valid: true}, nil
	}

	stock, err := l.InventoryBatch(ctx, order, asOf)
	if err != nil {
		return AvailabilityResult{}, err
	}

	res := AvailabilityResult{Valid: true}
	for _, id := range order {
		available := stock[id]
		if available.LessThan(required[id]) {
			res.Valid = false
			res.Shortages = append(res.Shortages, Shortage{
				ItemID:    id,
				Available: available,
				Required:  required[id],
			})
		}
	}
	return res, nil
}
