/*
Package inventory is the inventory ledger and monthly-closing engine.

PURPOSE:
  Records receipts, production, shipments, scrap and adjustments for a
  press → weld → paint metal-parts process, and computes stock levels from
  the append-only transaction log. Monthly closings freeze counted stock as
  the new ledger baseline.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item / Partner: master data referenced by the log
  - BomHeader / BomLine: per-item, per-month recipe
  - Transaction / TxLine: one movement event and its signed lines
  - Snapshot / SnapshotLine: calculated vs counted stock for a month

DESIGN PRINCIPLES:
  1. Lines carry the signed stock effect; the type is a category
  2. Precision: every quantity is a decimal.Decimal
  3. No stored running balances: stock is always derived from the log
  4. Fixed BOMs, fixed prices and closed snapshots never change again

SEE ALSO:
  - ledger.go: stock queries
  - commit.go: transaction commit pipeline
  - closing.go: monthly closing
*/
package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type PartnerID string
type BomID string
type BomLineID string
type TransactionID string
type LineID string
type SnapshotID string
type SnapshotLineID string
type PriceID string

// NewID returns a random identifier for any entity.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// MASTER DATA
// =============================================================================

type ItemType string

const (
	ItemRaw        ItemType = "RAW"
	ItemSub        ItemType = "SUB"
	ItemProduct    ItemType = "PRODUCT"
	ItemScrap      ItemType = "SCRAP"
	ItemConsumable ItemType = "CONSUMABLE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemRaw, ItemSub, ItemProduct, ItemScrap, ItemConsumable:
		return true
	}
	return false
}

// Process is the manufacturing stage an item comes out of.
type Process string

const (
	ProcessPress Process = "PRESS"
	ProcessWeld  Process = "WELD"
	ProcessPaint Process = "PAINT"
	ProcessNone  Process = "NONE"
)

func (p Process) Valid() bool {
	switch p {
	case ProcessPress, ProcessWeld, ProcessPaint, ProcessNone:
		return true
	}
	return false
}

// Predecessor returns the stage whose output feeds p, or "" for the first stage.
func (p Process) Predecessor() Process {
	switch p {
	case ProcessWeld:
		return ProcessPress
	case ProcessPaint:
		return ProcessWeld
	}
	return ""
}

type Source string

const (
	SourceMake Source = "MAKE"
	SourceBuy  Source = "BUY"
)

func (s Source) Valid() bool { return s == SourceMake || s == SourceBuy }

type Item struct {
	ID        ItemID
	Code      string
	Name      string
	Spec      string
	Unit      string
	Type      ItemType
	Process   Process
	Source    Source
	Cost      decimal.Decimal
	CreatedAt time.Time
}

type PartnerType string

const (
	PartnerVendor   PartnerType = "VENDOR"
	PartnerCustomer PartnerType = "CUSTOMER"
	PartnerBoth     PartnerType = "BOTH"
)

func (t PartnerType) Valid() bool {
	return t == PartnerVendor || t == PartnerCustomer || t == PartnerBoth
}

type Partner struct {
	ID                 PartnerID
	Name               string
	Type               PartnerType
	RegistrationNumber string // empty when not registered; unique otherwise
	Contact            string
	CreatedAt          time.Time
}

// =============================================================================
// BILL OF MATERIALS
// =============================================================================

// BomHeader is the recipe of one produced item for one month.
// At most one header exists per (ItemID, Version). Once IsFixed is set the
// header and its lines are frozen.
type BomHeader struct {
	ID        BomID
	ItemID    ItemID
	Version   Month
	IsFixed   bool
	CreatedAt time.Time
	Lines     []BomLine
}

// BomLine is the quantity of one material needed per one unit of the parent.
type BomLine struct {
	ID          BomLineID
	BomHeaderID BomID
	MaterialID  ItemID
	Quantity    decimal.Decimal
	Process     Process // optional stage tag, "" when unset
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

type TransactionType string

const (
	TxPurchaseReceipt TransactionType = "PURCHASE_RECEIPT"
	TxProductionPress TransactionType = "PRODUCTION_PRESS"
	TxProductionWeld  TransactionType = "PRODUCTION_WELD"
	TxProductionPaint TransactionType = "PRODUCTION_PAINT"
	TxShipment        TransactionType = "SHIPMENT"
	TxScrapShipment   TransactionType = "SCRAP_SHIPMENT"
	TxAdjustment      TransactionType = "ADJUSTMENT"
	TxTransfer        TransactionType = "TRANSFER"

	// EntryOpeningBalance only appears in ledger output, never in the log.
	EntryOpeningBalance TransactionType = "OPENING_BALANCE"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxPurchaseReceipt, TxProductionPress, TxProductionWeld, TxProductionPaint,
		TxShipment, TxScrapShipment, TxAdjustment, TxTransfer:
		return true
	}
	return false
}

func (t TransactionType) IsProduction() bool {
	return t == TxProductionPress || t == TxProductionWeld || t == TxProductionPaint
}

// ConsumesBom reports whether production of this type draws materials from a BOM.
// Press production has no sub-BOM in this model.
func (t TransactionType) ConsumesBom() bool {
	return t == TxProductionWeld || t == TxProductionPaint
}

// Stage returns the process a production type belongs to.
func (t TransactionType) Stage() Process {
	switch t {
	case TxProductionPress:
		return ProcessPress
	case TxProductionWeld:
		return ProcessWeld
	case TxProductionPaint:
		return ProcessPaint
	}
	return ProcessNone
}

var transactionTypeLabels = map[TransactionType]string{
	EntryOpeningBalance: "Opening balance",
	TxPurchaseReceipt:   "Purchase receipt",
	TxProductionPress:   "Press production",
	TxProductionWeld:    "Weld production",
	TxProductionPaint:   "Paint production",
	TxShipment:          "Shipment",
	TxScrapShipment:     "Scrap shipment",
	TxAdjustment:        "Inventory adjustment",
	TxTransfer:          "Transfer",
}

// Label is the display name used in ledger output.
func (t TransactionType) Label() string {
	if l, ok := transactionTypeLabels[t]; ok {
		return l
	}
	return string(t)
}

// Transaction is one movement event. Header and lines are written and
// deleted together.
type Transaction struct {
	ID        TransactionID
	Date      Date
	Type      TransactionType
	PartnerID PartnerID // "" when no partner
	Remarks   string
	CreatedAt time.Time
	Lines     []TxLine
}

// TxLine carries the signed stock effect of a transaction on one item:
// positive is inbound, negative is outbound.
type TxLine struct {
	ID            LineID
	TransactionID TransactionID
	LineNo        int
	ItemID        ItemID
	Quantity      decimal.Decimal
	Price         decimal.NullDecimal
	Amount        decimal.NullDecimal
}

// Movement is one transaction line joined with its header, the unit the
// ledger replays.
type Movement struct {
	TransactionID TransactionID
	Date          Date
	Type          TransactionType
	PartnerID     PartnerID
	Remarks       string
	CreatedAt     time.Time
	LineNo        int
	ItemID        ItemID
	Quantity      decimal.Decimal
}

// =============================================================================
// PRICES
// =============================================================================

type PriceType string

const (
	PricePurchase PriceType = "PURCHASE"
	PriceSales    PriceType = "SALES"
)

func (t PriceType) Valid() bool { return t == PricePurchase || t == PriceSales }

type MonthlyPrice struct {
	ID     PriceID
	Month  Month
	ItemID ItemID
	Price  decimal.Decimal
	Type   PriceType
}

type MonthlyPriceStatus struct {
	Month   Month
	IsFixed bool
	FixedAt *time.Time
}

// =============================================================================
// MONTHLY SNAPSHOTS
// =============================================================================

type SnapshotStatus string

const (
	StatusDraft    SnapshotStatus = "DRAFT"
	StatusCounting SnapshotStatus = "COUNTING"
	StatusVariance SnapshotStatus = "VARIANCE"
	StatusClosed   SnapshotStatus = "CLOSED"
)

// Snapshot compares system-calculated stock with physically counted stock
// for one month. Only COUNTING (on creation) and CLOSED are ever persisted;
// VARIANCE is derived from the lines by StateOf.
type Snapshot struct {
	ID             SnapshotID
	Month          Month
	Status         SnapshotStatus
	AdjustmentTxID TransactionID // "" when closing needed no adjustment
	ClosedAt       *time.Time
	CreatedAt      time.Time
	Lines          []SnapshotLine
}

type SnapshotLine struct {
	ID               SnapshotLineID
	SnapshotID       SnapshotID
	ItemID           ItemID
	CalculatedQty    decimal.Decimal
	ActualQty        decimal.Decimal
	DifferenceQty    decimal.Decimal
	DifferenceReason string
}

// Baseline is the counted quantity of an item in the latest closed month.
type Baseline struct {
	ItemID   ItemID
	Month    Month
	Quantity decimal.Decimal
}
