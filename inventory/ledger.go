/*
ledger.go - Point-in-time stock and the item ledger

PURPOSE:
  Stock is never stored. It is computed on demand from the most recent
  closed monthly baseline plus every log line after it.

ALGORITHM (Inventory):
  1. M = month containing asOf
  2. Baseline = counted quantity of the latest CLOSED snapshot with
     month < M that has a line for the item. Replay starts on the first
     day of the month after that snapshot.
  3. Without a baseline, replay starts at the beginning of time from 0.
  4. Result = baseline + sum of signed line quantities in [start, asOf].

  Cost is O(lines since the last close) once closings accumulate.

INVARIANT:
  Baseline + replay equals a full replay of the log. Closing writes the
  variance as an ADJUSTMENT dated inside the closed month, so the counted
  quantity is exactly what a full replay yields.

SEE ALSO:
  - availability.go: shortage checks built on InventoryBatch
  - closing.go: produces the baselines
*/
package inventory

import (
	"context"

	"github.com/shopspring/decimal"
)

// Ledger answers stock questions from a Store.
type Ledger struct {
	Store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store}
}

// Inventory returns the signed stock of one item as of the end of asOf.
func (l *Ledger) Inventory(ctx context.Context, itemID ItemID, asOf Date) (decimal.Decimal, error) {
	qty, err := l.InventoryBatch(ctx, []ItemID{itemID}, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return qty[itemID], nil
}

// InventoryBatch computes stock for several items with one baseline lookup
// and one pass over the movements. Every requested id is present in the
// result, zero when the item never moved.
func (l *Ledger) InventoryBatch(ctx context.Context, itemIDs []ItemID, asOf Date) (map[ItemID]decimal.Decimal, error) {
	ids := uniqueItemIDs(itemIDs)
	result := make(map[ItemID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	baselines, err := l.Store.ClosedBaselines(ctx, ids, asOf.Month())
	if err != nil {
		return nil, err
	}

	// Items without a baseline replay from the beginning of time, so the
	// shared scan only gets a lower bound when every item has one.
	allBaselined := len(baselines) == len(ids)
	windowStart := make(map[ItemID]Date, len(baselines))
	var from Date
	for _, id := range ids {
		result[id] = decimal.Zero
		b, ok := baselines[id]
		if !ok {
			continue
		}
		start := b.Month.Next().FirstDay()
		result[id] = b.Quantity
		windowStart[id] = start
		if allBaselined && (from.IsZero() || start.Before(from)) {
			from = start
		}
	}

	moves, err := l.Store.Movements(ctx, MovementFilter{ItemIDs: ids, From: from, To: asOf})
	if err != nil {
		return nil, err
	}
	for _, m := range moves {
		if start, ok := windowStart[m.ItemID]; ok && m.Date.Before(start) {
			continue
		}
		result[m.ItemID] = result[m.ItemID].Add(m.Quantity)
	}
	return result, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// LedgerEntry is one row of an item's in/out/balance trail. InQty and OutQty
// are magnitudes; Balance is the running signed stock after the row.
type LedgerEntry struct {
	Date          Date
	Type          TransactionType
	TypeName      string
	TransactionID TransactionID
	PartnerName   string
	InQty         decimal.Decimal
	OutQty        decimal.Decimal
	Balance       decimal.Decimal
	Remarks       string
}

// Entries replays the item's lines in [start, end] in chronological order.
// When start is given the first entry is an OPENING_BALANCE carrying the
// stock at the end of the previous day. Nil bounds leave the window open.
func (l *Ledger) Entries(ctx context.Context, itemID ItemID, start, end *Date) ([]LedgerEntry, error) {
	if start != nil && end != nil && end.Before(*start) {
		return nil, invalid("end", "end %s is before start %s", end, start)
	}

	var (
		entries []LedgerEntry
		balance = decimal.Zero
		filter  = MovementFilter{ItemIDs: []ItemID{itemID}}
	)

	if start != nil {
		opening, err := l.Inventory(ctx, itemID, start.AddDays(-1))
		if err != nil {
			return nil, err
		}
		balance = opening
		filter.From = *start
		entries = append(entries, LedgerEntry{
			Date:     *start,
			Type:     EntryOpeningBalance,
			TypeName: EntryOpeningBalance.Label(),
			InQty:    decimal.Zero,
			OutQty:   decimal.Zero,
			Balance:  opening,
		})
	}
	if end != nil {
		filter.To = *end
	}

	moves, err := l.Store.Movements(ctx, filter)
	if err != nil {
		return nil, err
	}

	partnerIDs := make([]PartnerID, 0)
	for _, m := range moves {
		if m.PartnerID != "" {
			partnerIDs = append(partnerIDs, m.PartnerID)
		}
	}
	partners := map[PartnerID]Partner{}
	if len(partnerIDs) > 0 {
		if partners, err = l.Store.PartnersByIDs(ctx, partnerIDs); err != nil {
			return nil, err
		}
	}

	for _, m := range moves {
		entry := LedgerEntry{
			Date:          m.Date,
			Type:          m.Type,
			TypeName:      m.Type.Label(),
			TransactionID: m.TransactionID,
			PartnerName:   partners[m.PartnerID].Name,
			InQty:         decimal.Zero,
			OutQty:        decimal.Zero,
			Remarks:       m.Remarks,
		}
		if m.Quantity.IsPositive() {
			entry.InQty = m.Quantity
		} else {
			entry.OutQty = m.Quantity.Neg()
		}
		balance = balance.Add(m.Quantity)
		entry.Balance = balance
		entries = append(entries, entry)
	}
	return entries, nil
}

func uniqueItemIDs(ids []ItemID) []ItemID {
	seen := make(map[ItemID]bool, len(ids))
	out := make([]ItemID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
