/*
closing.go - Monthly closing state machine

STATES:
  DRAFT ──create──▶ COUNTING ◀──▶ VARIANCE ──close──▶ CLOSED

  Only two transitions are persisted: creation stores COUNTING and close
  stores CLOSED. DRAFT (no snapshot) and VARIANCE (some counted quantity
  differs) are derived from the data by StateOf.

CLOSE:
  1. Load the snapshot; absent is NotFound, already CLOSED is a conflict
  2. Every line with a non-zero difference becomes one line of a single
     ADJUSTMENT transaction dated the last day of the month
  3. The snapshot is marked CLOSED with the adjustment id

  Steps 2 and 3 share a store transaction. Marking CLOSED is conditional
  on the snapshot still being open, so of two concurrent closes exactly one
  wins and the loser's adjustment is rolled back.

  The closed snapshot is the new ledger baseline for the month.
*/
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Closer struct {
	Store TxStore
	Log   logrus.FieldLogger

	// RequireFixedMasters refuses snapshot creation and closing while the
	// month's BOMs or prices are not fixed.
	RequireFixedMasters bool

	Now func() time.Time
}

func NewCloser(store TxStore, log logrus.FieldLogger) *Closer {
	return &Closer{
		Store:               store,
		Log:                 log,
		RequireFixedMasters: true,
		Now:                 time.Now,
	}
}

// CreateSnapshot freezes the calculated stock of every item at the end of
// the month. Counted quantities start equal to the calculated ones.
func (c *Closer) CreateSnapshot(ctx context.Context, month Month) (*Snapshot, error) {
	if _, err := ParseMonth(string(month)); err != nil {
		return nil, err
	}
	log := c.logger().WithField("month", month)

	snap := &Snapshot{
		ID:        SnapshotID(NewID()),
		Month:     month,
		Status:    StatusCounting,
		CreatedAt: c.now(),
	}

	err := c.Store.WithTx(ctx, func(store Store) error {
		if err := store.LockPeriods(ctx); err != nil {
			return err
		}
		latest, err := store.LatestSnapshotMonth(ctx)
		if err != nil {
			return err
		}
		if latest == month {
			return &ConflictError{Resource: "snapshot", Key: string(month), Reason: "already exists"}
		}
		if latest != "" && month.Before(latest) {
			return &ImmutabilityError{
				Resource: "period",
				ID:       string(month),
				Reason:   fmt.Sprintf("a later month %s already has a snapshot", latest),
			}
		}
		if err := requireEarlierClosed(ctx, store, month); err != nil {
			return err
		}
		if c.RequireFixedMasters {
			if err := requireFixedMasters(ctx, store, month); err != nil {
				return err
			}
		}

		items, err := store.ListItems(ctx)
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}
		ids := make([]ItemID, len(items))
		for i, item := range items {
			ids[i] = item.ID
		}
		qty, err := NewLedger(store).InventoryBatch(ctx, ids, month.LastDay())
		if err != nil {
			return fmt.Errorf("failed to compute inventory: %w", err)
		}

		snap.Lines = make([]SnapshotLine, len(items))
		for i, item := range items {
			snap.Lines[i] = SnapshotLine{
				ID:            SnapshotLineID(NewID()),
				SnapshotID:    snap.ID,
				ItemID:        item.ID,
				CalculatedQty: qty[item.ID],
				ActualQty:     qty[item.ID],
				DifferenceQty: decimal.Zero,
			}
		}
		return store.CreateSnapshot(ctx, snap)
	})
	if err != nil {
		return nil, err
	}

	log.WithField("lines", len(snap.Lines)).Info("snapshot created")
	return snap, nil
}

// SnapshotLineUpdate carries the fields a counter may change. Nil fields
// are left as they are.
type SnapshotLineUpdate struct {
	ActualQty        *decimal.Decimal
	DifferenceReason *string
}

// UpdateSnapshotLine records a physical count or a difference reason. The
// difference is recomputed whenever the counted quantity is written.
func (c *Closer) UpdateSnapshotLine(ctx context.Context, id SnapshotLineID, upd SnapshotLineUpdate) (*SnapshotLine, error) {
	if upd.ActualQty != nil && upd.ActualQty.IsNegative() {
		return nil, invalid("actualQty", "counted quantity cannot be negative")
	}

	var line *SnapshotLine
	err := c.Store.WithTx(ctx, func(store Store) error {
		var err error
		if line, err = store.GetSnapshotLine(ctx, id); err != nil {
			return err
		}
		snap, err := store.GetSnapshotByID(ctx, line.SnapshotID)
		if err != nil {
			return err
		}
		if snap.Status == StatusClosed {
			return &ImmutabilityError{Resource: "snapshot", ID: string(snap.Month), Reason: "month is closed"}
		}

		if upd.ActualQty != nil {
			line.ActualQty = *upd.ActualQty
			line.DifferenceQty = line.ActualQty.Sub(line.CalculatedQty)
		}
		if upd.DifferenceReason != nil {
			line.DifferenceReason = *upd.DifferenceReason
		}
		return store.UpdateSnapshotLine(ctx, *line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// CloseResult is the closed snapshot and a summary for the operator.
type CloseResult struct {
	Snapshot          *Snapshot
	AdjustmentCreated bool
	Message           string
}

// CloseMonth posts the counted differences and closes the month.
func (c *Closer) CloseMonth(ctx context.Context, month Month) (*CloseResult, error) {
	log := c.logger().WithField("month", month)

	var (
		closed *Snapshot
		adj    *Transaction
	)
	err := c.Store.WithTx(ctx, func(store Store) error {
		if err := store.LockPeriods(ctx); err != nil {
			return err
		}
		snap, err := store.GetSnapshot(ctx, month)
		if err != nil {
			return err
		}
		if snap.Status == StatusClosed {
			return &ConflictError{Resource: "snapshot", Key: string(month), Reason: "already closed"}
		}
		if err := requireEarlierClosed(ctx, store, month); err != nil {
			return err
		}
		if c.RequireFixedMasters {
			if err := requireFixedMasters(ctx, store, month); err != nil {
				return err
			}
		}

		now := c.now()
		var lines []TxLine
		for _, l := range snap.Lines {
			if l.DifferenceQty.IsZero() {
				continue
			}
			lines = append(lines, TxLine{ItemID: l.ItemID, Quantity: l.DifferenceQty})
		}

		var adjID TransactionID
		if len(lines) > 0 {
			adj = &Transaction{
				ID:        TransactionID(NewID()),
				Date:      month.LastDay(),
				Type:      TxAdjustment,
				Remarks:   fmt.Sprintf("%s monthly closing inventory adjustment", month),
				CreatedAt: now,
			}
			adj.Lines = numberLines(adj.ID, lines)
			if err := store.AppendTransaction(ctx, adj); err != nil {
				return fmt.Errorf("failed to append adjustment: %w", err)
			}
			adjID = adj.ID
		}

		if err := store.CloseSnapshot(ctx, snap.ID, adjID, now); err != nil {
			return err
		}
		closed, err = store.GetSnapshotByID(ctx, snap.ID)
		return err
	})
	if err != nil {
		if IsIntegrity(err) {
			log.WithError(err).Error("closing left the store in an unknown state")
		}
		return nil, err
	}

	res := &CloseResult{Snapshot: closed, AdjustmentCreated: adj != nil}
	if adj != nil {
		res.Message = fmt.Sprintf("%s closed. Adjustment transaction created.", month)
		log.WithFields(logrus.Fields{
			"transaction_id": adj.ID,
			"lines":          len(adj.Lines),
		}).Info("month closed with adjustment")
	} else {
		res.Message = fmt.Sprintf("%s closed. No adjustments needed.", month)
		log.Info("month closed")
	}
	return res, nil
}

// =============================================================================
// DERIVED STATE
// =============================================================================

// StateOf derives the closing state of a month from its snapshot, which may
// be nil.
func StateOf(s *Snapshot) SnapshotStatus {
	switch {
	case s == nil:
		return StatusDraft
	case s.Status == StatusClosed:
		return StatusClosed
	}
	for _, l := range s.Lines {
		if !l.DifferenceQty.IsZero() {
			return StatusVariance
		}
	}
	return StatusCounting
}

// UnresolvedDifferences lists lines that differ and carry no reason yet.
func UnresolvedDifferences(s *Snapshot) []SnapshotLine {
	if s == nil {
		return nil
	}
	var out []SnapshotLine
	for _, l := range s.Lines {
		if !l.DifferenceQty.IsZero() && l.DifferenceReason == "" {
			out = append(out, l)
		}
	}
	return out
}

// ClosingReadiness is the checklist shown before a month is closed.
type ClosingReadiness struct {
	Month                 Month
	State                 SnapshotStatus
	BomFixed              bool
	PricesFixed           bool
	UnresolvedDifferences int
	// OpenEarlierMonth is the oldest earlier month whose snapshot is not
	// closed yet, or "".
	OpenEarlierMonth Month
	Ready            bool
}

// Readiness reports whether the month can be closed. Unresolved
// differences are reported but do not block closing.
func (c *Closer) Readiness(ctx context.Context, month Month) (*ClosingReadiness, error) {
	if _, err := ParseMonth(string(month)); err != nil {
		return nil, err
	}
	r := &ClosingReadiness{Month: month}

	var err error
	if r.BomFixed, err = bomFixedForMonth(ctx, c.Store, month); err != nil {
		return nil, err
	}
	if r.PricesFixed, err = pricesFixedForMonth(ctx, c.Store, month); err != nil {
		return nil, err
	}

	snap, err := c.Store.GetSnapshot(ctx, month)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		r.State = StateOf(snap)
		r.UnresolvedDifferences = len(UnresolvedDifferences(snap))
	} else {
		r.State = StatusDraft
	}

	if r.OpenEarlierMonth, err = openEarlierMonth(ctx, c.Store, month); err != nil {
		return nil, err
	}

	r.Ready = r.State != StatusDraft && r.State != StatusClosed && r.OpenEarlierMonth == ""
	if c.RequireFixedMasters {
		r.Ready = r.Ready && r.BomFixed && r.PricesFixed
	}
	return r, nil
}

// openEarlierMonth returns the oldest month before month whose snapshot is
// still open.
func openEarlierMonth(ctx context.Context, store SnapshotStore, month Month) (Month, error) {
	snaps, err := store.ListSnapshots(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}
	var open Month
	for _, s := range snaps {
		if s.Month.Before(month) && s.Status != StatusClosed {
			open = s.Month
		}
	}
	return open, nil
}

// requireEarlierClosed refuses month while an earlier snapshot is open.
// Months are snapshotted and closed in calendar order.
func requireEarlierClosed(ctx context.Context, store SnapshotStore, month Month) error {
	open, err := openEarlierMonth(ctx, store, month)
	if err != nil {
		return err
	}
	if open != "" {
		return &ConflictError{
			Resource: "snapshot",
			Key:      string(month),
			Reason:   fmt.Sprintf("month %s is not closed yet", open),
		}
	}
	return nil
}

func requireFixedMasters(ctx context.Context, store CatalogStore, month Month) error {
	ok, err := bomFixedForMonth(ctx, store, month)
	if err != nil {
		return err
	}
	if !ok {
		return invalid("month", "BOMs for %s are not fixed", month)
	}
	if ok, err = pricesFixedForMonth(ctx, store, month); err != nil {
		return err
	}
	if !ok {
		return invalid("month", "prices for %s are not fixed", month)
	}
	return nil
}

func (c *Closer) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Closer) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
