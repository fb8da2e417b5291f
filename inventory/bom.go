/*
bom.go - BOM-driven material consumption

PURPOSE:
  Weld and paint production consume the materials listed in the produced
  item's BOM for the transaction month. Consumption is either derived from
  the BOM or, when the caller submits it explicitly, checked against it.

FUNCTIONS:
  GenerateConsumptionLines  - one negative line per BOM line
  ValidateBomConsumption    - submitted negatives vs the BOM, within BomTolerance
  CheckProcessSequence      - predecessor-stage materials must be in stock
*/
package inventory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BomTolerance is the absolute difference allowed between submitted and
// expected consumption per material.
var BomTolerance = decimal.RequireFromString("0.001")

// GenerateConsumptionLines returns one line per BOM line with quantity
// -(bomQty × producedQty). A nil BOM or an empty one yields no lines.
func GenerateConsumptionLines(bom *BomHeader, producedQty decimal.Decimal) []TxLine {
	if bom == nil || len(bom.Lines) == 0 {
		return nil
	}
	lines := make([]TxLine, 0, len(bom.Lines))
	for _, bl := range bom.Lines {
		lines = append(lines, TxLine{
			ItemID:   bl.MaterialID,
			Quantity: bl.Quantity.Mul(producedQty).Neg(),
		})
	}
	return lines
}

// BomValidation carries non-fatal findings of ValidateBomConsumption.
type BomValidation struct {
	Warnings []string
}

// ValidateBomConsumption checks the negative lines of a production
// submission against the BOM. Consumption is aggregated per material, so a
// material split over several lines is compared by its total.
//
// A nil BOM accepts anything. An unfixed BOM is accepted with a warning.
func ValidateBomConsumption(bom *BomHeader, producedQty decimal.Decimal, lines []TxLine) (BomValidation, error) {
	var res BomValidation
	if !producedQty.IsPositive() {
		return res, invalid("quantity", "produced quantity must be positive, got %s", producedQty)
	}
	if bom == nil {
		return res, nil
	}
	if !bom.IsFixed {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("BOM for %s in %s is not fixed", bom.ItemID, bom.Version))
	}

	consumed := make(map[ItemID]decimal.Decimal)
	var order []ItemID
	for _, l := range lines {
		if !l.Quantity.IsNegative() {
			continue
		}
		if _, ok := consumed[l.ItemID]; !ok {
			order = append(order, l.ItemID)
		}
		consumed[l.ItemID] = consumed[l.ItemID].Add(l.Quantity.Abs())
	}

	inBom := make(map[ItemID]bool, len(bom.Lines))
	for _, bl := range bom.Lines {
		inBom[bl.MaterialID] = true
		expected := bl.Quantity.Mul(producedQty)
		actual := consumed[bl.MaterialID]
		if actual.Sub(expected).Abs().GreaterThan(BomTolerance) {
			return res, invalid("lines",
				"BOM quantity mismatch for %s: expected %s, submitted %s", bl.MaterialID, expected, actual)
		}
	}
	for _, id := range order {
		if !inBom[id] {
			return res, invalid("lines", "material %s is not in the BOM", id)
		}
	}
	return res, nil
}

// CheckProcessSequence refuses production of a stage whose BOM materials
// from the predecessor stage have no stock on the given date. Weld needs
// press output, paint needs weld output. Press production and materials
// of other stages are not checked.
func (l *Ledger) CheckProcessSequence(ctx context.Context, txType TransactionType, bom *BomHeader, asOf Date) error {
	stage := txType.Stage()
	want := stage.Predecessor()
	if bom == nil || want == "" {
		return nil
	}

	ids := make([]ItemID, 0, len(bom.Lines))
	for _, bl := range bom.Lines {
		ids = append(ids, bl.MaterialID)
	}
	items, err := l.Store.ItemsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	var gated []ItemID
	for _, bl := range bom.Lines {
		if item, ok := items[bl.MaterialID]; ok && item.Process == want {
			gated = append(gated, bl.MaterialID)
		}
	}
	if len(gated) == 0 {
		return nil
	}

	stock, err := l.InventoryBatch(ctx, gated, asOf)
	if err != nil {
		return err
	}
	for _, id := range gated {
		if !stock[id].IsPositive() {
			return &ProcessSequenceError{Stage: stage, Missing: want, MaterialID: id}
		}
	}
	return nil
}
