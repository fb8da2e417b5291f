/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates an empty database with a realistic month of a press → weld →
	paint shop. Everything goes through the catalog, the commit pipeline and
	the closer, so the demo data obeys the same rules as real entries.

AVAILABLE SCENARIOS:

	press-weld-paint: one month of receipts, production and shipments
	month-closing:    the same month with a counted snapshot ready to close

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "month-closing"}

NOTE:

	Loading refuses with 409 when any item exists. Start from a fresh
	database.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/erp-ledger/inventory"
)

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required,oneof=press-weld-paint month-closing"`
}

// demoMonth is the month every scenario fills.
const demoMonth inventory.Month = "2025-09"

var scenarios = []ScenarioDTO{
	{
		ID:          "press-weld-paint",
		Name:        "Press, Weld, Paint",
		Description: "Steel received, pressed into brackets, welded and painted, then shipped",
	},
	{
		ID:          "month-closing",
		Name:        "Month Closing",
		Description: "The same month with a snapshot where the physical count differs",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a predefined scenario into an empty database.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	items, err := h.Catalog.ListItems(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(items) > 0 {
		h.fail(w, r, &inventory.ConflictError{Resource: "scenario", Key: req.ScenarioID, Reason: "database is not empty"})
		return
	}

	switch req.ScenarioID {
	case "press-weld-paint":
		_, err = h.loadProductionScenario(ctx)
	case "month-closing":
		err = h.loadClosingScenario(ctx)
	}
	if err != nil {
		h.fail(w, r, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.logger().WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoItems struct {
	steel, bracket, assy, painted, nut inventory.ItemID
}

func (h *Handler) loadProductionScenario(ctx context.Context) (*demoItems, error) {
	var ids demoItems
	items := []struct {
		dst     *inventory.ItemID
		code    string
		name    string
		typ     inventory.ItemType
		process inventory.Process
		source  inventory.Source
	}{
		{&ids.steel, "RM-SPCC-16", "SPCC coil 1.6t", inventory.ItemRaw, inventory.ProcessNone, inventory.SourceBuy},
		{&ids.nut, "RM-NUT-M8", "Weld nut M8", inventory.ItemRaw, inventory.ProcessNone, inventory.SourceBuy},
		{&ids.bracket, "P-100", "Pressed bracket", inventory.ItemSub, inventory.ProcessPress, inventory.SourceMake},
		{&ids.assy, "W-100", "Welded bracket assembly", inventory.ItemSub, inventory.ProcessWeld, inventory.SourceMake},
		{&ids.painted, "PT-100", "Painted bracket assembly", inventory.ItemProduct, inventory.ProcessPaint, inventory.SourceMake},
	}
	for _, it := range items {
		created, err := h.Catalog.CreateItem(ctx, inventory.Item{
			Code: it.code, Name: it.name, Unit: "EA",
			Type: it.typ, Process: it.process, Source: it.source,
		})
		if err != nil {
			return nil, err
		}
		*it.dst = created.ID
	}

	vendor, err := h.Catalog.CreatePartner(ctx, inventory.Partner{Name: "Daehan Steel", Type: inventory.PartnerVendor, RegistrationNumber: "123-45-67890"})
	if err != nil {
		return nil, err
	}
	customer, err := h.Catalog.CreatePartner(ctx, inventory.Partner{Name: "Hanil Motors", Type: inventory.PartnerCustomer})
	if err != nil {
		return nil, err
	}

	boms := []inventory.BomHeader{
		{ItemID: ids.assy, Version: demoMonth, Lines: []inventory.BomLine{
			{MaterialID: ids.bracket, Quantity: decimal.NewFromInt(2)},
			{MaterialID: ids.nut, Quantity: decimal.NewFromInt(4)},
		}},
		{ItemID: ids.painted, Version: demoMonth, Lines: []inventory.BomLine{
			{MaterialID: ids.assy, Quantity: decimal.NewFromInt(1)},
		}},
	}
	for _, b := range boms {
		if _, err := h.Catalog.CreateBom(ctx, b); err != nil {
			return nil, err
		}
	}
	if _, err := h.Catalog.FixBoms(ctx, demoMonth); err != nil {
		return nil, err
	}

	prices := []inventory.MonthlyPrice{
		{ItemID: ids.steel, Type: inventory.PricePurchase, Price: decimal.RequireFromString("1.35")},
		{ItemID: ids.nut, Type: inventory.PricePurchase, Price: decimal.RequireFromString("0.08")},
		{ItemID: ids.painted, Type: inventory.PriceSales, Price: decimal.RequireFromString("4.20")},
	}
	for _, p := range prices {
		p.Month = demoMonth
		if _, err := h.Catalog.CreatePrice(ctx, p); err != nil {
			return nil, err
		}
	}
	if _, err := h.Catalog.FixPrices(ctx, demoMonth); err != nil {
		return nil, err
	}

	day := func(d int) inventory.Date { return inventory.NewDate(2025, 9, d) }
	qty := func(item inventory.ItemID, q string) inventory.TxLine {
		return inventory.TxLine{ItemID: item, Quantity: decimal.RequireFromString(q)}
	}
	entries := []inventory.CommitRequest{
		{Date: day(1), Type: inventory.TxPurchaseReceipt, PartnerID: vendor.ID, Remarks: "Coil delivery",
			Lines: []inventory.TxLine{qty(ids.steel, "2000"), qty(ids.nut, "1000")}},
		// Press has no BOM; steel use is entered by hand.
		{Date: day(3), Type: inventory.TxProductionPress,
			Lines: []inventory.TxLine{qty(ids.bracket, "400"), qty(ids.steel, "-480.5")}},
		{Date: day(8), Type: inventory.TxProductionWeld,
			Lines: []inventory.TxLine{qty(ids.assy, "150")}},
		{Date: day(12), Type: inventory.TxProductionPaint,
			Lines: []inventory.TxLine{qty(ids.painted, "120")}},
		{Date: day(20), Type: inventory.TxShipment, PartnerID: customer.ID,
			Lines: []inventory.TxLine{qty(ids.painted, "-100")}},
	}
	for _, e := range entries {
		if _, err := h.Pipeline.Commit(ctx, e); err != nil {
			return nil, err
		}
	}
	return &ids, nil
}

func (h *Handler) loadClosingScenario(ctx context.Context) error {
	ids, err := h.loadProductionScenario(ctx)
	if err != nil {
		return err
	}
	snap, err := h.Closer.CreateSnapshot(ctx, demoMonth)
	if err != nil {
		return err
	}

	counted := decimal.NewFromInt(96)
	reason := "four brackets scrapped at the press"
	for _, l := range snap.Lines {
		if l.ItemID != ids.bracket {
			continue
		}
		_, err := h.Closer.UpdateSnapshotLine(ctx, l.ID, inventory.SnapshotLineUpdate{
			ActualQty:        &counted,
			DifferenceReason: &reason,
		})
		return err
	}
	return nil
}
