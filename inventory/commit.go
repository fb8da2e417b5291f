/*
commit.go - Transaction commit pipeline

PURPOSE:
  Turns a submitted transaction into committed log entries, or rejects it
  without touching the log.

COMMIT FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  Validate   ──▶  Period   ──▶  Availability  ──▶  BOM            │
  │  lines           open?         of submitted       consumption    │
  │                                 lines                 │          │
  │                                                       ▼          │
  │  Read back  ◀──  Append header  ◀──  Process   ◀──  Availability │
  │  aggregate       + all lines         sequence       of derived   │
  │                  (one tx)                           lines        │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

  Every check and the append run inside one store transaction, so the
  stock a check sees is the stock the append builds on.

BOM CONSUMPTION:
  Production with explicit negative lines is checked against the BOM with
  ValidateBomConsumption. Weld and paint production without explicit
  consumption gets it derived with GenerateConsumptionLines. Derived
  shortages are reported with Materials set.

FAILURE:
  Any error before the append rolls back with no partial writes. A
  read-back that cannot find the aggregate, or a rollback that fails, is an
  IntegrityError and is logged at error level.
*/
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Pipeline commits and deletes transactions.
type Pipeline struct {
	Store TxStore
	Log   logrus.FieldLogger

	// EnforceProcessSequence refuses weld/paint production while
	// predecessor-stage materials have no stock.
	EnforceProcessSequence bool

	Now func() time.Time
}

func NewPipeline(store TxStore, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		Store:                  store,
		Log:                    log,
		EnforceProcessSequence: true,
		Now:                    time.Now,
	}
}

// CommitRequest is a submitted transaction. Line ids, numbers and the
// transaction id are assigned by the pipeline.
type CommitRequest struct {
	Date      Date
	Type      TransactionType
	PartnerID PartnerID
	Remarks   string
	Lines     []TxLine
}

// CommitResult is the committed aggregate plus non-fatal findings.
type CommitResult struct {
	Transaction *Transaction
	Warnings    []string
}

// Commit validates the request and appends it atomically.
func (p *Pipeline) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	if req.Date.IsZero() {
		return nil, invalid("date", "date is required")
	}
	if err := ValidateLines(req.Type, req.Lines); err != nil {
		return nil, err
	}

	log := p.logger().WithFields(logrus.Fields{
		"type": req.Type,
		"date": req.Date.String(),
	})

	tx := &Transaction{
		ID:        TransactionID(NewID()),
		Date:      req.Date,
		Type:      req.Type,
		PartnerID: req.PartnerID,
		Remarks:   req.Remarks,
		CreatedAt: p.now(),
	}
	var warnings []string

	err := p.Store.WithTx(ctx, func(store Store) error {
		// 1. References and period
		if err := checkReferences(ctx, store, req); err != nil {
			return err
		}
		if err := checkPeriodOpen(ctx, store, req.Date); err != nil {
			return err
		}

		ledger := NewLedger(store)

		// 2. Submitted outbound lines
		avail, err := ledger.ValidateAvailability(ctx, req.Lines, req.Date)
		if err != nil {
			return fmt.Errorf("failed to check availability: %w", err)
		}
		if !avail.Valid {
			return shortageError(ctx, store, false, avail.Shortages)
		}

		lines := append([]TxLine(nil), req.Lines...)

		// 3. BOM consumption
		if req.Type.IsProduction() {
			produced, _ := ProducedLine(req.Lines)
			bom, err := findBom(ctx, store, produced.ItemID, req.Date.Month())
			if err != nil {
				return err
			}

			if len(ConsumptionLines(req.Lines)) > 0 {
				res, err := ValidateBomConsumption(bom, produced.Quantity, req.Lines)
				if err != nil {
					return err
				}
				warnings = append(warnings, res.Warnings...)
			} else if req.Type.ConsumesBom() && bom != nil {
				if !bom.IsFixed {
					warnings = append(warnings, fmt.Sprintf("BOM for %s in %s is not fixed", bom.ItemID, bom.Version))
				}
				derived := GenerateConsumptionLines(bom, produced.Quantity)
				check, err := ledger.ValidateAvailability(ctx, derived, req.Date)
				if err != nil {
					return fmt.Errorf("failed to check material availability: %w", err)
				}
				if !check.Valid {
					return shortageError(ctx, store, true, check.Shortages)
				}
				lines = append(lines, derived...)
			}

			// 4. Process sequence
			if p.EnforceProcessSequence {
				if err := ledger.CheckProcessSequence(ctx, req.Type, bom, req.Date); err != nil {
					return err
				}
			}
		}

		// 5. Append
		tx.Lines = numberLines(tx.ID, lines)
		if err := store.AppendTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsIntegrity(err) {
			log.WithError(err).Error("commit left the store in an unknown state")
		}
		return nil, err
	}

	// 6. Read back
	committed, err := p.Store.GetTransaction(ctx, tx.ID)
	if err != nil {
		if IsNotFound(err) {
			err = &IntegrityError{Op: "commit read-back", Err: err}
			log.WithField("transaction_id", tx.ID).WithError(err).Error("committed transaction is missing")
		}
		return nil, err
	}

	for _, w := range warnings {
		log.WithField("transaction_id", tx.ID).Warn(w)
	}
	log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"lines":          len(committed.Lines),
	}).Info("transaction committed")

	return &CommitResult{Transaction: committed, Warnings: warnings}, nil
}

// Delete removes a transaction and its lines. Transactions in a period that
// already has a snapshot cannot be deleted.
func (p *Pipeline) Delete(ctx context.Context, id TransactionID) error {
	err := p.Store.WithTx(ctx, func(store Store) error {
		tx, err := store.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if err := checkPeriodOpen(ctx, store, tx.Date); err != nil {
			return err
		}
		return store.DeleteTransaction(ctx, id)
	})
	if err != nil {
		if IsIntegrity(err) {
			p.logger().WithField("transaction_id", id).WithError(err).Error("delete left the store in an unknown state")
		}
		return err
	}
	p.logger().WithField("transaction_id", id).Info("transaction deleted")
	return nil
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Pipeline) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

// checkPeriodOpen refuses dates on or before the last day of the newest
// month that has a snapshot.
func checkPeriodOpen(ctx context.Context, store SnapshotStore, date Date) error {
	if err := store.LockPeriods(ctx); err != nil {
		return err
	}
	latest, err := store.LatestSnapshotMonth(ctx)
	if err != nil {
		return fmt.Errorf("failed to read latest snapshot month: %w", err)
	}
	if latest != "" && date.BeforeOrEqual(latest.LastDay()) {
		return &ImmutabilityError{
			Resource: "period",
			ID:       date.String(),
			Reason:   fmt.Sprintf("month %s already has an inventory snapshot", latest),
		}
	}
	return nil
}

func checkReferences(ctx context.Context, store CatalogStore, req CommitRequest) error {
	if req.PartnerID != "" {
		if _, err := store.GetPartner(ctx, req.PartnerID); err != nil {
			if IsNotFound(err) {
				return invalid("partnerId", "unknown partner %s", req.PartnerID)
			}
			return err
		}
	}

	ids := make([]ItemID, 0, len(req.Lines))
	for _, l := range req.Lines {
		ids = append(ids, l.ItemID)
	}
	items, err := store.ItemsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i, l := range req.Lines {
		if _, ok := items[l.ItemID]; !ok {
			return invalid(fmt.Sprintf("lines[%d].itemId", i), "unknown item %s", l.ItemID)
		}
	}
	return nil
}

// findBom returns nil when the item has no BOM for the month.
func findBom(ctx context.Context, store CatalogStore, itemID ItemID, month Month) (*BomHeader, error) {
	bom, err := store.FindBom(ctx, itemID, month)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load BOM: %w", err)
	}
	return bom, nil
}

// shortageError fills in item names and codes. Unknown items keep their id
// as name and an empty code.
func shortageError(ctx context.Context, store CatalogStore, materials bool, shortages []Shortage) error {
	ids := make([]ItemID, len(shortages))
	for i, s := range shortages {
		ids[i] = s.ItemID
	}
	items, err := store.ItemsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	out := make([]Shortage, len(shortages))
	for i, s := range shortages {
		s.ItemName = string(s.ItemID)
		if item, ok := items[s.ItemID]; ok {
			s.ItemName = item.Name
			s.ItemCode = item.Code
		}
		out[i] = s
	}
	return &InsufficientInventoryError{Materials: materials, Shortages: out}
}

func numberLines(txID TransactionID, lines []TxLine) []TxLine {
	out := make([]TxLine, len(lines))
	for i, l := range lines {
		l.ID = LineID(NewID())
		l.TransactionID = txID
		l.LineNo = i + 1
		out[i] = l
	}
	return out
}
