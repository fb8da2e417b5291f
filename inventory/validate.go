package inventory

import "fmt"

// ValidateLines enforces the sign convention of a transaction type on its
// submitted lines. Lines carry the signed stock effect:
//
//	PURCHASE_RECEIPT          every line > 0
//	SHIPMENT, SCRAP_SHIPMENT  every line < 0
//	PRODUCTION_*              exactly one line > 0, negatives are consumption
//	ADJUSTMENT                any non-zero quantity
//
// TRANSFER has no defined stock effect and is rejected.
func ValidateLines(txType TransactionType, lines []TxLine) error {
	if !txType.Valid() {
		return invalid("type", "unknown transaction type %q", txType)
	}
	if txType == TxTransfer {
		return invalid("type", "%s transactions are not supported", txType)
	}
	if len(lines) == 0 {
		return invalid("lines", "at least one line is required")
	}

	positives := 0
	for i, line := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.ItemID == "" {
			return invalid(field+".itemId", "item is required")
		}
		if line.Quantity.IsZero() {
			return invalid(field+".quantity", "quantity must not be zero")
		}
		switch {
		case txType == TxPurchaseReceipt && !line.Quantity.IsPositive():
			return invalid(field+".quantity", "%s lines must be inbound (positive)", txType)
		case (txType == TxShipment || txType == TxScrapShipment) && !line.Quantity.IsNegative():
			return invalid(field+".quantity", "%s lines must be outbound (negative)", txType)
		}
		if line.Quantity.IsPositive() {
			positives++
		}
	}

	if txType.IsProduction() && positives != 1 {
		return invalid("lines", "%s needs exactly one produced line, got %d", txType, positives)
	}
	return nil
}

// ProducedLine returns the single positive line of a production transaction.
func ProducedLine(lines []TxLine) (TxLine, bool) {
	for _, l := range lines {
		if l.Quantity.IsPositive() {
			return l, true
		}
	}
	return TxLine{}, false
}

// ConsumptionLines returns the negative lines.
func ConsumptionLines(lines []TxLine) []TxLine {
	var out []TxLine
	for _, l := range lines {
		if l.Quantity.IsNegative() {
			out = append(out, l)
		}
	}
	return out
}
