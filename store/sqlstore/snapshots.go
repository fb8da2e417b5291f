package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/erp-ledger/inventory"
)

// =============================================================================
// SNAPSHOT STORE (inventory.SnapshotStore interface)
// =============================================================================

type snapshotRow struct {
	ID             string         `db:"id"`
	Month          string         `db:"month"`
	Status         string         `db:"status"`
	AdjustmentTxID sql.NullString `db:"adjustment_tx_id"`
	ClosedAt       sql.NullString `db:"closed_at"`
	CreatedAt      string         `db:"created_at"`
}

func (r snapshotRow) toDomain() (inventory.Snapshot, error) {
	closedAt, err := parseNullTime(r.ClosedAt)
	if err != nil {
		return inventory.Snapshot{}, corrupt("inventory_snapshots", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return inventory.Snapshot{}, corrupt("inventory_snapshots", r.ID, err)
	}
	return inventory.Snapshot{
		ID:             inventory.SnapshotID(r.ID),
		Month:          inventory.Month(r.Month),
		Status:         inventory.SnapshotStatus(r.Status),
		AdjustmentTxID: inventory.TransactionID(r.AdjustmentTxID.String),
		ClosedAt:       closedAt,
		CreatedAt:      createdAt,
	}, nil
}

type snapshotLineRow struct {
	ID               string          `db:"id"`
	SnapshotID       string          `db:"snapshot_id"`
	ItemID           string          `db:"item_id"`
	CalculatedQty    decimal.Decimal `db:"calculated_qty"`
	ActualQty        decimal.Decimal `db:"actual_qty"`
	DifferenceQty    decimal.Decimal `db:"difference_qty"`
	DifferenceReason string          `db:"difference_reason"`
}

func (r snapshotLineRow) toDomain() inventory.SnapshotLine {
	return inventory.SnapshotLine{
		ID:               inventory.SnapshotLineID(r.ID),
		SnapshotID:       inventory.SnapshotID(r.SnapshotID),
		ItemID:           inventory.ItemID(r.ItemID),
		CalculatedQty:    r.CalculatedQty,
		ActualQty:        r.ActualQty,
		DifferenceQty:    r.DifferenceQty,
		DifferenceReason: r.DifferenceReason,
	}
}

const (
	snapshotColumns     = `id, month, status, adjustment_tx_id, closed_at, created_at`
	snapshotLineColumns = `id, snapshot_id, item_id, calculated_qty, actual_qty, difference_qty, difference_reason`
)

// CreateSnapshot inserts the header and its lines. The unique month
// constraint turns a second snapshot for the month into a conflict.
func (c *conn) CreateSnapshot(ctx context.Context, s *inventory.Snapshot) error {
	_, err := c.exec(ctx, `
		INSERT INTO inventory_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(s.ID), string(s.Month), string(s.Status), nullString(string(s.AdjustmentTxID)),
		sql.NullString{}, formatTime(s.CreatedAt),
	)
	if err != nil {
		return mapError(err, "snapshot", string(s.Month))
	}

	for _, l := range s.Lines {
		_, err := c.exec(ctx, `
			INSERT INTO inventory_snapshot_lines (`+snapshotLineColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(l.ID), string(s.ID), string(l.ItemID),
			l.CalculatedQty, l.ActualQty, l.DifferenceQty, l.DifferenceReason,
		)
		if err != nil {
			return mapError(err, "snapshot line", string(l.ItemID))
		}
	}
	return nil
}

func (c *conn) GetSnapshot(ctx context.Context, month inventory.Month) (*inventory.Snapshot, error) {
	var row snapshotRow
	err := c.get(ctx, &row, `SELECT `+snapshotColumns+` FROM inventory_snapshots WHERE month = ?`, string(month))
	if err != nil {
		return nil, mapError(err, "snapshot", string(month))
	}
	return c.withLines(ctx, row)
}

func (c *conn) GetSnapshotByID(ctx context.Context, id inventory.SnapshotID) (*inventory.Snapshot, error) {
	var row snapshotRow
	err := c.get(ctx, &row, `SELECT `+snapshotColumns+` FROM inventory_snapshots WHERE id = ?`, string(id))
	if err != nil {
		return nil, mapError(err, "snapshot", string(id))
	}
	return c.withLines(ctx, row)
}

// withLines loads the lines of a snapshot ordered by item code.
func (c *conn) withLines(ctx context.Context, row snapshotRow) (*inventory.Snapshot, error) {
	var rows []snapshotLineRow
	err := c.selectAll(ctx, &rows, `
		SELECT sl.id, sl.snapshot_id, sl.item_id, sl.calculated_qty, sl.actual_qty,
		       sl.difference_qty, sl.difference_reason
		FROM inventory_snapshot_lines sl
		JOIN items i ON i.id = sl.item_id
		WHERE sl.snapshot_id = ?
		ORDER BY i.code, sl.item_id`, row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot lines: %w", err)
	}

	s, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	s.Lines = make([]inventory.SnapshotLine, len(rows))
	for i, r := range rows {
		s.Lines[i] = r.toDomain()
	}
	return &s, nil
}

func (c *conn) GetSnapshotLine(ctx context.Context, id inventory.SnapshotLineID) (*inventory.SnapshotLine, error) {
	var row snapshotLineRow
	err := c.get(ctx, &row, `SELECT `+snapshotLineColumns+` FROM inventory_snapshot_lines WHERE id = ?`, string(id))
	if err != nil {
		return nil, mapError(err, "snapshot line", string(id))
	}
	l := row.toDomain()
	return &l, nil
}

func (c *conn) ListSnapshots(ctx context.Context) ([]inventory.Snapshot, error) {
	var rows []snapshotRow
	if err := c.selectAll(ctx, &rows, `SELECT `+snapshotColumns+` FROM inventory_snapshots ORDER BY month DESC`); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]inventory.Snapshot, len(rows))
	for i, r := range rows {
		s, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// UpdateSnapshotLine only touches lines of snapshots that are still open.
func (c *conn) UpdateSnapshotLine(ctx context.Context, l inventory.SnapshotLine) error {
	res, err := c.exec(ctx, `
		UPDATE inventory_snapshot_lines
		SET actual_qty = ?, difference_qty = ?, difference_reason = ?
		WHERE id = ?
		  AND snapshot_id IN (SELECT id FROM inventory_snapshots WHERE status <> ?)`,
		l.ActualQty, l.DifferenceQty, l.DifferenceReason, string(l.ID), string(inventory.StatusClosed),
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot line: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil || n > 0 {
		return err
	}

	if _, err := c.GetSnapshotLine(ctx, l.ID); err != nil {
		return err
	}
	return &inventory.ImmutabilityError{Resource: "snapshot line", ID: string(l.ID), Reason: "snapshot is closed"}
}

// CloseSnapshot is conditional on the snapshot still being open, so only
// one of two concurrent closes can succeed.
func (c *conn) CloseSnapshot(ctx context.Context, id inventory.SnapshotID, adjustmentTxID inventory.TransactionID, closedAt time.Time) error {
	res, err := c.exec(ctx, `
		UPDATE inventory_snapshots
		SET status = ?, adjustment_tx_id = ?, closed_at = ?
		WHERE id = ? AND status <> ?`,
		string(inventory.StatusClosed), nullString(string(adjustmentTxID)), formatTime(closedAt),
		string(id), string(inventory.StatusClosed),
	)
	if err != nil {
		return mapError(err, "snapshot", string(id))
	}
	n, err := rowsAffected(res)
	if err != nil || n > 0 {
		return err
	}

	s, err := c.GetSnapshotByID(ctx, id)
	if err != nil {
		return err
	}
	return &inventory.ConflictError{Resource: "snapshot", Key: string(s.Month), Reason: "already closed"}
}

type baselineRow struct {
	ItemID   string          `db:"item_id"`
	Month    string          `db:"month"`
	Quantity decimal.Decimal `db:"actual_qty"`
}

// ClosedBaselines picks, per item, the newest closed snapshot line before
// the given month.
func (c *conn) ClosedBaselines(ctx context.Context, itemIDs []inventory.ItemID, before inventory.Month) (map[inventory.ItemID]inventory.Baseline, error) {
	out := make(map[inventory.ItemID]inventory.Baseline)
	if len(itemIDs) == 0 {
		return out, nil
	}

	var rows []baselineRow
	err := c.selectIn(ctx, &rows, `
		SELECT sl.item_id, s.month, sl.actual_qty
		FROM inventory_snapshot_lines sl
		JOIN inventory_snapshots s ON s.id = sl.snapshot_id
		WHERE s.status = ? AND s.month < ? AND sl.item_id IN (?)
		ORDER BY s.month DESC`,
		string(inventory.StatusClosed), string(before), strs(itemIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines: %w", err)
	}

	for _, r := range rows {
		id := inventory.ItemID(r.ItemID)
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = inventory.Baseline{ItemID: id, Month: inventory.Month(r.Month), Quantity: r.Quantity}
	}
	return out, nil
}

// LockPeriods takes a transaction-scoped advisory lock on PostgreSQL, where
// READ COMMITTED would otherwise let a back-dated commit and a new snapshot
// both pass their checks. SQLite runs every transaction on the single pooled
// connection, so there is nothing to take.
func (c *conn) LockPeriods(ctx context.Context) error {
	if c.q.DriverName() != DriverPostgres {
		return nil
	}
	if _, err := c.exec(ctx, `SELECT pg_advisory_xact_lock(?)`, periodLockKey); err != nil {
		return fmt.Errorf("failed to lock periods: %w", err)
	}
	return nil
}

func (c *conn) LatestSnapshotMonth(ctx context.Context) (inventory.Month, error) {
	var month sql.NullString
	err := c.get(ctx, &month, `SELECT MAX(month) FROM inventory_snapshots`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read latest snapshot month: %w", err)
	}
	return inventory.Month(month.String), nil
}
