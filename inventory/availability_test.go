package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/erp-ledger/inventory"
)

func TestValidateAvailability_AggregatesLinesPerItem(t *testing.T) {
	// GIVEN: 100 in stock
	// WHEN: Two outbound lines of 60 and 50 for the same item
	// THEN: The 110 total is short even though each line alone fits

	f := newFixture(t)
	steel := f.rawItem(t, "STEEL-01")
	f.receive(t, "2025-09-01", steel, "100")

	res, err := f.ledger.ValidateAvailability(f.ctx,
		[]inventory.TxLine{line(steel, "-60"), line(steel, "-50")},
		inventory.MustDate("2025-09-02"))

	require.NoError(t, err)
	assert.False(t, res.Valid)
	require.Len(t, res.Shortages, 1)
	assert.Equal(t, steel, res.Shortages[0].ItemID)
	assertQty(t, "100", res.Shortages[0].Available)
	assertQty(t, "110", res.Shortages[0].Required)
}

func TestValidateAvailability_IgnoresInboundLines(t *testing.T) {
	f := newFixture(t)
	steel := f.rawItem(t, "STEEL-01")
	f.receive(t, "2025-09-01", steel, "10")

	res, err := f.ledger.ValidateAvailability(f.ctx,
		[]inventory.TxLine{line(steel, "500"), line(steel, "-10")},
		inventory.MustDate("2025-09-01"))

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Shortages)
}

func TestValidateAvailability_UsesStockAsOfDate(t *testing.T) {
	f := newFixture(t)
	steel := f.rawItem(t, "STEEL-01")
	f.receive(t, "2025-09-10", steel, "10")

	before, err := f.ledger.ValidateAvailability(f.ctx, []inventory.TxLine{line(steel, "-1")}, inventory.MustDate("2025-09-09"))
	require.NoError(t, err)
	assert.False(t, before.Valid)

	after, err := f.ledger.ValidateAvailability(f.ctx, []inventory.TxLine{line(steel, "-1")}, inventory.MustDate("2025-09-10"))
	require.NoError(t, err)
	assert.True(t, after.Valid)
}

func TestValidateAvailability_ShortagesInFirstAppearanceOrder(t *testing.T) {
	f := newFixture(t)
	a := f.rawItem(t, "A")
	b := f.rawItem(t, "B")
	c := f.rawItem(t, "C")
	f.receive(t, "2025-09-01", b, "100")

	res, err := f.ledger.ValidateAvailability(f.ctx,
		[]inventory.TxLine{line(c, "-1"), line(b, "-1"), line(a, "-2")},
		inventory.MustDate("2025-09-30"))

	require.NoError(t, err)
	require.Len(t, res.Shortages, 2)
	assert.Equal(t, c, res.Shortages[0].ItemID)
	assert.Equal(t, a, res.Shortages[1].ItemID)
}

func TestValidateAvailability_NoOutboundLines(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.ValidateAvailability(f.ctx, nil, inventory.MustDate("2025-09-30"))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
