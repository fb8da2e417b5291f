/*
store.go - Persistence interfaces for the transaction log, snapshots and master data

KEY INTERFACES:
  LogStore:      transaction headers + lines, replayable movements
  SnapshotStore: monthly snapshots and closed baselines
  CatalogStore:  items, partners, BOMs, monthly prices
  TxStore:       all of the above plus an atomic unit of work

ATOMIC AGGREGATES:
  AppendTransaction writes a header and all its lines. Called inside
  WithTx, either everything is visible afterwards or nothing is. There is
  no separate "create header" / "create line" pair that could leave an
  orphan header behind.

ERRORS:
  Implementations return *NotFoundError for missing ids and *ConflictError
  for uniqueness violations, so the engine can use errors.Is without
  knowing the database.

IMPLEMENTATIONS:
  - store/sqlstore: SQLite and PostgreSQL
*/
package inventory

import (
	"context"
	"time"
)

// TransactionFilter narrows ListTransactions. Zero fields do not filter.
type TransactionFilter struct {
	From      Date
	To        Date
	Type      TransactionType
	PartnerID PartnerID
	ItemID    ItemID
}

// MovementFilter selects the lines replayed by the ledger. A zero From or To
// leaves that side of the window open.
type MovementFilter struct {
	ItemIDs []ItemID
	From    Date
	To      Date
}

// LogStore persists the transaction log.
type LogStore interface {
	// AppendTransaction persists the header and every line as one aggregate.
	AppendTransaction(ctx context.Context, tx *Transaction) error

	// DeleteTransaction removes the lines and then the header.
	DeleteTransaction(ctx context.Context, id TransactionID) error

	// GetTransaction returns the header with its lines ordered by LineNo.
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)

	// ListTransactions returns headers with lines, newest first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)

	// Movements returns matching lines ordered by date, creation time,
	// transaction id and line number.
	Movements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// SnapshotStore persists monthly snapshots.
type SnapshotStore interface {
	// CreateSnapshot persists header and lines. A second snapshot for the
	// same month is a *ConflictError.
	CreateSnapshot(ctx context.Context, s *Snapshot) error

	GetSnapshot(ctx context.Context, month Month) (*Snapshot, error)
	GetSnapshotByID(ctx context.Context, id SnapshotID) (*Snapshot, error)
	GetSnapshotLine(ctx context.Context, id SnapshotLineID) (*SnapshotLine, error)

	// ListSnapshots returns headers only, newest month first.
	ListSnapshots(ctx context.Context) ([]Snapshot, error)

	// UpdateSnapshotLine writes actual, difference and reason. It fails with
	// *ImmutabilityError when the parent snapshot is already closed.
	UpdateSnapshotLine(ctx context.Context, line SnapshotLine) error

	// CloseSnapshot marks an open snapshot CLOSED. Closing a snapshot that is
	// already closed is a *ConflictError.
	CloseSnapshot(ctx context.Context, id SnapshotID, adjustmentTxID TransactionID, closedAt time.Time) error

	// ClosedBaselines returns, per item, the line of the most recent CLOSED
	// snapshot with month strictly before the given month.
	ClosedBaselines(ctx context.Context, itemIDs []ItemID, before Month) (map[ItemID]Baseline, error)

	// LatestSnapshotMonth returns the newest month holding any snapshot, or "".
	LatestSnapshotMonth(ctx context.Context) (Month, error)

	// LockPeriods blocks other units of work that take the same lock until
	// the enclosing transaction ends. Period checks and snapshot changes take
	// it before reading the latest snapshot month.
	LockPeriods(ctx context.Context) error
}

// CatalogStore persists master data.
type CatalogStore interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	ItemsByIDs(ctx context.Context, ids []ItemID) (map[ItemID]Item, error)
	SaveItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id ItemID) error
	ItemReferenced(ctx context.Context, id ItemID) (bool, error)

	ListPartners(ctx context.Context) ([]Partner, error)
	GetPartner(ctx context.Context, id PartnerID) (*Partner, error)
	PartnersByIDs(ctx context.Context, ids []PartnerID) (map[PartnerID]Partner, error)
	SavePartner(ctx context.Context, p Partner) error
	DeletePartner(ctx context.Context, id PartnerID) error

	// ListBoms returns headers with lines; an empty month lists every version.
	ListBoms(ctx context.Context, month Month) ([]BomHeader, error)
	GetBom(ctx context.Context, id BomID) (*BomHeader, error)
	FindBom(ctx context.Context, itemID ItemID, month Month) (*BomHeader, error)
	// SaveBom upserts the header and replaces all of its lines.
	SaveBom(ctx context.Context, bom *BomHeader) error
	DeleteBom(ctx context.Context, id BomID) error
	// FixBoms sets IsFixed on every header of the month and returns how many there are.
	FixBoms(ctx context.Context, month Month) (int, error)

	ListPrices(ctx context.Context, month Month) ([]MonthlyPrice, error)
	GetPrice(ctx context.Context, id PriceID) (*MonthlyPrice, error)
	SavePrice(ctx context.Context, p MonthlyPrice) error
	DeletePrice(ctx context.Context, id PriceID) error
	// GetPriceStatus never returns NotFound: an unknown month is simply not fixed.
	GetPriceStatus(ctx context.Context, month Month) (*MonthlyPriceStatus, error)
	SavePriceStatus(ctx context.Context, status MonthlyPriceStatus) error
}

// Store is everything the engine reads and writes.
type Store interface {
	LogStore
	SnapshotStore
	CatalogStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
