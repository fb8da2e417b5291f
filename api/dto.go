/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.decode, which rejects bad JSON and failed tags with 400
  VALIDATION_ERROR and a field → tag map. Rules that need the store
  (unknown ids, fixed months) stay in the inventory package.

QUANTITIES:
  decimal.Decimal marshals as a JSON string ("10400.5") and accepts either
  a string or a number on input.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/erp-ledger/inventory"
)

const timeLayout = time.RFC3339

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ShortageDTO is one entry of an INSUFFICIENT_INVENTORY response.
type ShortageDTO struct {
	ItemID    string          `json:"itemId"`
	ItemName  string          `json:"itemName"`
	ItemCode  string          `json:"itemCode"`
	Available decimal.Decimal `json:"available"`
	Required  decimal.Decimal `json:"required"`
}

// =============================================================================
// ITEMS & PARTNERS
// =============================================================================

type ItemDTO struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Spec      string          `json:"spec"`
	Unit      string          `json:"unit"`
	Type      string          `json:"type"`
	Process   string          `json:"process"`
	Source    string          `json:"source"`
	Cost      decimal.Decimal `json:"cost"`
	CreatedAt string          `json:"createdAt"`
}

type ItemRequest struct {
	Code    string          `json:"code" validate:"required,max=64"`
	Name    string          `json:"name" validate:"required"`
	Spec    string          `json:"spec"`
	Unit    string          `json:"unit"`
	Type    string          `json:"type" validate:"required,oneof=RAW SUB PRODUCT SCRAP CONSUMABLE"`
	Process string          `json:"process" validate:"omitempty,oneof=PRESS WELD PAINT NONE"`
	Source  string          `json:"source" validate:"required,oneof=MAKE BUY"`
	Cost    decimal.Decimal `json:"cost"`
}

func (r ItemRequest) toDomain(id inventory.ItemID) inventory.Item {
	return inventory.Item{
		ID:      id,
		Code:    r.Code,
		Name:    r.Name,
		Spec:    r.Spec,
		Unit:    r.Unit,
		Type:    inventory.ItemType(r.Type),
		Process: inventory.Process(r.Process),
		Source:  inventory.Source(r.Source),
		Cost:    r.Cost,
	}
}

func toItemDTO(i inventory.Item) ItemDTO {
	return ItemDTO{
		ID:        string(i.ID),
		Code:      i.Code,
		Name:      i.Name,
		Spec:      i.Spec,
		Unit:      i.Unit,
		Type:      string(i.Type),
		Process:   string(i.Process),
		Source:    string(i.Source),
		Cost:      i.Cost,
		CreatedAt: i.CreatedAt.Format(timeLayout),
	}
}

type PartnerDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Type               string `json:"type"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	Contact            string `json:"contact"`
	CreatedAt          string `json:"createdAt"`
}

type PartnerRequest struct {
	Name               string `json:"name" validate:"required"`
	Type               string `json:"type" validate:"required,oneof=VENDOR CUSTOMER BOTH"`
	RegistrationNumber string `json:"registrationNumber"`
	Contact            string `json:"contact"`
}

func (r PartnerRequest) toDomain(id inventory.PartnerID) inventory.Partner {
	return inventory.Partner{
		ID:                 id,
		Name:               r.Name,
		Type:               inventory.PartnerType(r.Type),
		RegistrationNumber: r.RegistrationNumber,
		Contact:            r.Contact,
	}
}

func toPartnerDTO(p inventory.Partner) PartnerDTO {
	return PartnerDTO{
		ID:                 string(p.ID),
		Name:               p.Name,
		Type:               string(p.Type),
		RegistrationNumber: p.RegistrationNumber,
		Contact:            p.Contact,
		CreatedAt:          p.CreatedAt.Format(timeLayout),
	}
}

// =============================================================================
// BOMS & PRICES
// =============================================================================

type BomLineDTO struct {
	ID         string          `json:"id,omitempty"`
	MaterialID string          `json:"materialId" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	Process    string          `json:"process,omitempty" validate:"omitempty,oneof=PRESS WELD PAINT NONE"`
}

type BomDTO struct {
	ID        string       `json:"id"`
	ItemID    string       `json:"itemId"`
	Version   string       `json:"version"`
	IsFixed   bool         `json:"isFixed"`
	CreatedAt string       `json:"createdAt"`
	Lines     []BomLineDTO `json:"lines"`
}

type CreateBomRequest struct {
	ItemID  string       `json:"itemId" validate:"required"`
	Version string       `json:"version" validate:"required,datetime=2006-01"`
	Lines   []BomLineDTO `json:"lines" validate:"dive"`
}

type UpdateBomRequest struct {
	Lines []BomLineDTO `json:"lines" validate:"dive"`
}

func bomLinesFromDTO(in []BomLineDTO) []inventory.BomLine {
	out := make([]inventory.BomLine, len(in))
	for i, l := range in {
		out[i] = inventory.BomLine{
			MaterialID: inventory.ItemID(l.MaterialID),
			Quantity:   l.Quantity,
			Process:    inventory.Process(l.Process),
		}
	}
	return out
}

func toBomDTO(b inventory.BomHeader) BomDTO {
	lines := make([]BomLineDTO, len(b.Lines))
	for i, l := range b.Lines {
		lines[i] = BomLineDTO{
			ID:         string(l.ID),
			MaterialID: string(l.MaterialID),
			Quantity:   l.Quantity,
			Process:    string(l.Process),
		}
	}
	return BomDTO{
		ID:        string(b.ID),
		ItemID:    string(b.ItemID),
		Version:   string(b.Version),
		IsFixed:   b.IsFixed,
		CreatedAt: b.CreatedAt.Format(timeLayout),
		Lines:     lines,
	}
}

type PriceDTO struct {
	ID     string          `json:"id"`
	Month  string          `json:"month"`
	ItemID string          `json:"itemId"`
	Price  decimal.Decimal `json:"price"`
	Type   string          `json:"type"`
}

type PriceRequest struct {
	Month  string          `json:"month" validate:"required,datetime=2006-01"`
	ItemID string          `json:"itemId" validate:"required"`
	Price  decimal.Decimal `json:"price"`
	Type   string          `json:"type" validate:"required,oneof=PURCHASE SALES"`
}

func (r PriceRequest) toDomain(id inventory.PriceID) inventory.MonthlyPrice {
	return inventory.MonthlyPrice{
		ID:     id,
		Month:  inventory.Month(r.Month),
		ItemID: inventory.ItemID(r.ItemID),
		Price:  r.Price,
		Type:   inventory.PriceType(r.Type),
	}
}

func toPriceDTO(p inventory.MonthlyPrice) PriceDTO {
	return PriceDTO{
		ID:     string(p.ID),
		Month:  string(p.Month),
		ItemID: string(p.ItemID),
		Price:  p.Price,
		Type:   string(p.Type),
	}
}

type PriceStatusDTO struct {
	Month   string  `json:"month"`
	IsFixed bool    `json:"isFixed"`
	FixedAt *string `json:"fixedAt"`
}

func toPriceStatusDTO(s inventory.MonthlyPriceStatus) PriceStatusDTO {
	return PriceStatusDTO{Month: string(s.Month), IsFixed: s.IsFixed, FixedAt: formatOptTime(s.FixedAt)}
}

// =============================================================================
// TRANSACTIONS & LEDGER
// =============================================================================

type TxLineDTO struct {
	ID       string               `json:"id,omitempty"`
	LineNo   int                  `json:"lineNo,omitempty"`
	ItemID   string               `json:"itemId" validate:"required"`
	Quantity decimal.Decimal      `json:"quantity"`
	Price    *decimal.NullDecimal `json:"price,omitempty"`
	Amount   *decimal.NullDecimal `json:"amount,omitempty"`
}

type TransactionDTO struct {
	ID        string      `json:"id"`
	Date      string      `json:"date"`
	Type      string      `json:"type"`
	PartnerID string      `json:"partnerId,omitempty"`
	Remarks   string      `json:"remarks"`
	CreatedAt string      `json:"createdAt"`
	Lines     []TxLineDTO `json:"lines"`
}

// TransactionHeader is the "transaction" part of a commit request.
type TransactionHeader struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Type      string `json:"type" validate:"required"`
	PartnerID string `json:"partnerId"`
	Remarks   string `json:"remarks"`
}

// CommitTransactionRequest mirrors what the entry screen posts:
// {"transaction": {...}, "lines": [...]}.
type CommitTransactionRequest struct {
	Transaction TransactionHeader `json:"transaction"`
	Lines       []TxLineDTO       `json:"lines" validate:"required,min=1,dive"`
}

type CommitResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	Warnings    []string       `json:"warnings"`
}

func txLinesFromDTO(in []TxLineDTO) []inventory.TxLine {
	out := make([]inventory.TxLine, len(in))
	for i, l := range in {
		out[i] = inventory.TxLine{ItemID: inventory.ItemID(l.ItemID), Quantity: l.Quantity}
		if l.Price != nil {
			out[i].Price = *l.Price
		}
		if l.Amount != nil {
			out[i].Amount = *l.Amount
		}
	}
	return out
}

func toTransactionDTO(tx inventory.Transaction) TransactionDTO {
	lines := make([]TxLineDTO, len(tx.Lines))
	for i, l := range tx.Lines {
		lines[i] = TxLineDTO{
			ID:       string(l.ID),
			LineNo:   l.LineNo,
			ItemID:   string(l.ItemID),
			Quantity: l.Quantity,
		}
		if l.Price.Valid {
			p := l.Price
			lines[i].Price = &p
		}
		if l.Amount.Valid {
			a := l.Amount
			lines[i].Amount = &a
		}
	}
	return TransactionDTO{
		ID:        string(tx.ID),
		Date:      tx.Date.String(),
		Type:      string(tx.Type),
		PartnerID: string(tx.PartnerID),
		Remarks:   tx.Remarks,
		CreatedAt: tx.CreatedAt.Format(timeLayout),
		Lines:     lines,
	}
}

type InventoryDTO struct {
	ItemID   string          `json:"itemId"`
	Quantity decimal.Decimal `json:"quantity"`
	AsOfDate string          `json:"asOfDate"`
}

type LedgerEntryDTO struct {
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	TypeName      string          `json:"typeName"`
	TransactionID string          `json:"transactionId,omitempty"`
	PartnerName   string          `json:"partnerName,omitempty"`
	InQty         decimal.Decimal `json:"inQty"`
	OutQty        decimal.Decimal `json:"outQty"`
	Balance       decimal.Decimal `json:"balance"`
	Remarks       string          `json:"remarks"`
}

func toLedgerEntryDTO(e inventory.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		Date:          e.Date.String(),
		Type:          string(e.Type),
		TypeName:      e.TypeName,
		TransactionID: string(e.TransactionID),
		PartnerName:   e.PartnerName,
		InQty:         e.InQty,
		OutQty:        e.OutQty,
		Balance:       e.Balance,
		Remarks:       e.Remarks,
	}
}

// =============================================================================
// SNAPSHOTS & CLOSING
// =============================================================================

type SnapshotLineDTO struct {
	ID               string          `json:"id"`
	SnapshotID       string          `json:"snapshotId"`
	ItemID           string          `json:"itemId"`
	CalculatedQty    decimal.Decimal `json:"calculatedQty"`
	ActualQty        decimal.Decimal `json:"actualQty"`
	DifferenceQty    decimal.Decimal `json:"differenceQty"`
	DifferenceReason string          `json:"differenceReason"`
}

type SnapshotDTO struct {
	ID             string            `json:"id"`
	Month          string            `json:"month"`
	Status         string            `json:"status"`
	State          string            `json:"state,omitempty"`
	AdjustmentTxID string            `json:"adjustmentTxId,omitempty"`
	ClosedAt       *string           `json:"closedAt"`
	CreatedAt      string            `json:"createdAt"`
	Lines          []SnapshotLineDTO `json:"lines,omitempty"`
}

type CreateSnapshotRequest struct {
	Month string `json:"month" validate:"required,datetime=2006-01"`
}

type UpdateSnapshotLineRequest struct {
	ActualQty        *decimal.Decimal `json:"actualQty"`
	DifferenceReason *string          `json:"differenceReason"`
}

type CloseMonthResponse struct {
	SnapshotDTO
	AdjustmentCreated bool   `json:"adjustmentCreated"`
	Message           string `json:"message"`
}

type ReadinessDTO struct {
	Month                 string `json:"month"`
	State                 string `json:"state"`
	BomFixed              bool   `json:"bomFixed"`
	PricesFixed           bool   `json:"pricesFixed"`
	UnresolvedDifferences int    `json:"unresolvedDifferences"`
	OpenEarlierMonth      string `json:"openEarlierMonth,omitempty"`
	Ready                 bool   `json:"ready"`
}

func toSnapshotLineDTO(l inventory.SnapshotLine) SnapshotLineDTO {
	return SnapshotLineDTO{
		ID:               string(l.ID),
		SnapshotID:       string(l.SnapshotID),
		ItemID:           string(l.ItemID),
		CalculatedQty:    l.CalculatedQty,
		ActualQty:        l.ActualQty,
		DifferenceQty:    l.DifferenceQty,
		DifferenceReason: l.DifferenceReason,
	}
}

// toSnapshotDTO reports the stored status and, when lines are loaded, the
// derived state.
func toSnapshotDTO(s inventory.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		ID:             string(s.ID),
		Month:          string(s.Month),
		Status:         string(s.Status),
		AdjustmentTxID: string(s.AdjustmentTxID),
		ClosedAt:       formatOptTime(s.ClosedAt),
		CreatedAt:      s.CreatedAt.Format(timeLayout),
	}
	if s.Lines != nil {
		dto.State = string(inventory.StateOf(&s))
		dto.Lines = make([]SnapshotLineDTO, len(s.Lines))
		for i, l := range s.Lines {
			dto.Lines[i] = toSnapshotLineDTO(l)
		}
	}
	return dto
}

func formatOptTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}
