/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the inventory engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the inventory package.

ENDPOINTS:
  Master data:
    GET/POST         /api/items, /api/partners, /api/bom, /api/monthly-prices
    GET/PUT/DELETE   /api/items/{id}, /api/partners/{id}, /api/bom/{id}
    PUT/DELETE       /api/monthly-prices/{id}
    POST             /api/bom/fix/{month}, /api/monthly-prices/fix/{month}
    GET              /api/monthly-prices/status/{month}

  Transactions:
    GET    /api/transactions           Filter by startDate, endDate, type, partnerId, itemId
    GET    /api/transactions/{id}      One transaction with lines
    POST   /api/transactions           Commit through the pipeline
    DELETE /api/transactions/{id}      Delete while the period is open

  Stock:
    GET    /api/inventory/{itemId}         Stock as of ?date (default today)
    GET    /api/inventory/{itemId}/ledger  Running ledger for ?start / ?end

  Closing:
    GET    /api/snapshots, /api/snapshots/{month}
    POST   /api/snapshots                  Create the month's snapshot
    PUT    /api/snapshot-lines/{id}        Record a count or reason
    POST   /api/snapshots/{month}/close    Close the month
    GET    /api/closing/{month}/readiness  Closing checklist

  GET /api/health                          Store reachability

REQUEST FLOW:
  1. Decode and validate the body (validator tags)
  2. Call the inventory engine
  3. Serialize the response
  4. Map engine errors to status codes in h.fail

ERROR HANDLING:
  - 400 VALIDATION_ERROR:       malformed input
  - 400 INSUFFICIENT_INVENTORY: details list every short item
  - 404 NOT_FOUND
  - 409 IMMUTABLE:              fixed BOM/prices, closed snapshot, locked period
  - 409 CONFLICT:               duplicates, double close, referenced records
  - 500 INTEGRITY_FAILURE:      logged at error level
  - 500 INTERNAL_ERROR

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/warp/erp-ledger/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    inventory.TxStore
	Catalog  *inventory.Catalog
	Pipeline *inventory.Pipeline
	Closer   *inventory.Closer
	Ledger   *inventory.Ledger
	Log      logrus.FieldLogger

	validate *validator.Validate
}

// NewHandler wires the engine components around one store.
func NewHandler(store inventory.TxStore, log logrus.FieldLogger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Store:    store,
		Catalog:  inventory.NewCatalog(store, log),
		Pipeline: inventory.NewPipeline(store, log),
		Closer:   inventory.NewCloser(store, log),
		Ledger:   inventory.NewLedger(store),
		Log:      log,
		validate: v,
	}
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListItems(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Catalog.GetItem(r.Context(), inventory.ItemID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Catalog.CreateItem(r.Context(), req.toDomain(""))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(*item))
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Catalog.UpdateItem(r.Context(), req.toDomain(inventory.ItemID(chi.URLParam(r, "id"))))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(*item))
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteItem(r.Context(), inventory.ItemID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PARTNER HANDLERS
// =============================================================================

func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	partners, err := h.Catalog.ListPartners(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PartnerDTO, len(partners))
	for i, p := range partners {
		dtos[i] = toPartnerDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetPartner(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetPartner(r.Context(), inventory.PartnerID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerDTO(*p))
}

func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Catalog.CreatePartner(r.Context(), req.toDomain(""))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPartnerDTO(*p))
}

func (h *Handler) UpdatePartner(w http.ResponseWriter, r *http.Request) {
	var req PartnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Catalog.UpdatePartner(r.Context(), req.toDomain(inventory.PartnerID(chi.URLParam(r, "id"))))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPartnerDTO(*p))
}

func (h *Handler) DeletePartner(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeletePartner(r.Context(), inventory.PartnerID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BOM HANDLERS
// =============================================================================

// ListBoms returns every version, or one month's with ?month=YYYY-MM.
func (h *Handler) ListBoms(w http.ResponseWriter, r *http.Request) {
	month := inventory.Month(r.URL.Query().Get("month"))
	if month != "" {
		if _, err := inventory.ParseMonth(string(month)); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	boms, err := h.Catalog.ListBoms(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]BomDTO, len(boms))
	for i, b := range boms {
		dtos[i] = toBomDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetBom(w http.ResponseWriter, r *http.Request) {
	bom, err := h.Catalog.GetBom(r.Context(), inventory.BomID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBomDTO(*bom))
}

func (h *Handler) CreateBom(w http.ResponseWriter, r *http.Request) {
	var req CreateBomRequest
	if !h.decode(w, r, &req) {
		return
	}
	bom, err := h.Catalog.CreateBom(r.Context(), inventory.BomHeader{
		ItemID:  inventory.ItemID(req.ItemID),
		Version: inventory.Month(req.Version),
		Lines:   bomLinesFromDTO(req.Lines),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBomDTO(*bom))
}

func (h *Handler) UpdateBom(w http.ResponseWriter, r *http.Request) {
	var req UpdateBomRequest
	if !h.decode(w, r, &req) {
		return
	}
	bom, err := h.Catalog.UpdateBom(r.Context(), inventory.BomID(chi.URLParam(r, "id")), bomLinesFromDTO(req.Lines))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBomDTO(*bom))
}

func (h *Handler) DeleteBom(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteBom(r.Context(), inventory.BomID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) FixBoms(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	n, err := h.Catalog.FixBoms(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": n})
}

// =============================================================================
// PRICE HANDLERS
// =============================================================================

func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	month := inventory.Month(r.URL.Query().Get("month"))
	prices, err := h.Catalog.ListPrices(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PriceDTO, len(prices))
	for i, p := range prices {
		dtos[i] = toPriceDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Catalog.CreatePrice(r.Context(), req.toDomain(""))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPriceDTO(*p))
}

func (h *Handler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Catalog.UpdatePrice(r.Context(), req.toDomain(inventory.PriceID(chi.URLParam(r, "id"))))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTO(*p))
}

func (h *Handler) DeletePrice(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeletePrice(r.Context(), inventory.PriceID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPriceStatus(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	status, err := h.Catalog.PriceStatus(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceStatusDTO(*status))
}

func (h *Handler) FixPrices(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	status, err := h.Catalog.FixPrices(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceStatusDTO(*status))
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.TransactionFilter{
		Type:      inventory.TransactionType(q.Get("type")),
		PartnerID: inventory.PartnerID(q.Get("partnerId")),
		ItemID:    inventory.ItemID(q.Get("itemId")),
	}
	var err error
	if filter.From, err = optDate(q.Get("startDate")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = optDate(q.Get("endDate")); err != nil {
		h.fail(w, r, err)
		return
	}

	txs, err := h.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Store.GetTransaction(r.Context(), inventory.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*tx))
}

// CommitTransaction runs the commit pipeline. BOM-derived consumption lines
// are part of the returned transaction.
func (h *Handler) CommitTransaction(w http.ResponseWriter, r *http.Request) {
	var req CommitTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := inventory.ParseDate(req.Transaction.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Pipeline.Commit(r.Context(), inventory.CommitRequest{
		Date:      date,
		Type:      inventory.TransactionType(req.Transaction.Type),
		PartnerID: inventory.PartnerID(req.Transaction.PartnerID),
		Remarks:   req.Transaction.Remarks,
		Lines:     txLinesFromDTO(req.Lines),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	warnings := res.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, CommitResponse{
		Transaction: toTransactionDTO(*res.Transaction),
		Warnings:    warnings,
	})
}

func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.Pipeline.Delete(r.Context(), inventory.TransactionID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := inventory.ItemID(chi.URLParam(r, "itemId"))

	asOf := inventory.Today()
	if s := r.URL.Query().Get("date"); s != "" {
		d, err := inventory.ParseDate(s)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		asOf = d
	}

	if _, err := h.Catalog.GetItem(ctx, itemID); err != nil {
		h.fail(w, r, err)
		return
	}
	qty, err := h.Ledger.Inventory(ctx, itemID, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, InventoryDTO{ItemID: string(itemID), Quantity: qty, AsOfDate: asOf.String()})
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := inventory.ItemID(chi.URLParam(r, "itemId"))

	start, err := optDatePtr(r.URL.Query().Get("start"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := optDatePtr(r.URL.Query().Get("end"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if _, err := h.Catalog.GetItem(ctx, itemID); err != nil {
		h.fail(w, r, err)
		return
	}
	entries, err := h.Ledger.Entries(ctx, itemID, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CLOSING HANDLERS
// =============================================================================

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Store.ListSnapshots(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	snap, err := h.Store.GetSnapshot(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req CreateSnapshotRequest
	if !h.decode(w, r, &req) {
		return
	}
	snap, err := h.Closer.CreateSnapshot(r.Context(), inventory.Month(req.Month))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(*snap))
}

func (h *Handler) UpdateSnapshotLine(w http.ResponseWriter, r *http.Request) {
	var req UpdateSnapshotLineRequest
	if !h.decode(w, r, &req) {
		return
	}
	line, err := h.Closer.UpdateSnapshotLine(r.Context(), inventory.SnapshotLineID(chi.URLParam(r, "id")),
		inventory.SnapshotLineUpdate{ActualQty: req.ActualQty, DifferenceReason: req.DifferenceReason})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotLineDTO(*line))
}

func (h *Handler) CloseMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	res, err := h.Closer.CloseMonth(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CloseMonthResponse{
		SnapshotDTO:       toSnapshotDTO(*res.Snapshot),
		AdjustmentCreated: res.AdjustmentCreated,
		Message:           res.Message,
	})
}

func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	month, ok := h.monthParam(w, r)
	if !ok {
		return
	}
	rd, err := h.Closer.Readiness(r.Context(), month)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReadinessDTO{
		Month:                 string(rd.Month),
		State:                 string(rd.State),
		BomFixed:              rd.BomFixed,
		PricesFixed:           rd.PricesFixed,
		UnresolvedDifferences: rd.UnresolvedDifferences,
		OpenEarlierMonth:      string(rd.OpenEarlierMonth),
		Ready:                 rd.Ready,
	})
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger().WithError(err).Error("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

// decode reads the JSON body into dst and runs its validator tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", validationDetails(ve))
			return false
		}
		h.fail(w, r, err)
		return false
	}
	return true
}

// validationDetails maps each failing field to the rule it broke.
func validationDetails(ve validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func (h *Handler) monthParam(w http.ResponseWriter, r *http.Request) (inventory.Month, bool) {
	month, err := inventory.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return month, true
}

func optDate(s string) (inventory.Date, error) {
	if s == "" {
		return inventory.Date{}, nil
	}
	return inventory.ParseDate(s)
}

func optDatePtr(s string) (*inventory.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := inventory.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// fail maps an engine error to a status code and body.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := h.logger().WithField("request_id", middleware.GetReqID(r.Context()))

	var short *inventory.InsufficientInventoryError
	switch {
	case errors.Is(err, inventory.ErrIntegrity):
		log.WithError(err).Error("integrity failure")
		writeError(w, http.StatusInternalServerError, "INTEGRITY_FAILURE", "Store may be inconsistent", err.Error())
	case errors.As(err, &short):
		details := make([]ShortageDTO, len(short.Shortages))
		for i, s := range short.Shortages {
			details[i] = ShortageDTO{
				ItemID:    string(s.ItemID),
				ItemName:  s.ItemName,
				ItemCode:  s.ItemCode,
				Available: s.Available,
				Required:  s.Required,
			}
		}
		msg := "Insufficient inventory"
		if short.Materials {
			msg = "Insufficient material inventory"
		}
		writeError(w, http.StatusBadRequest, "INSUFFICIENT_INVENTORY", msg, details)
	case errors.Is(err, inventory.ErrValidation):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, inventory.ErrImmutable):
		writeError(w, http.StatusConflict, "IMMUTABLE", err.Error(), nil)
	case errors.Is(err, inventory.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	default:
		log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
	}
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Log == nil {
		return logrus.StandardLogger()
	}
	return h.Log
}
