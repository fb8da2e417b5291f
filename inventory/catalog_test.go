package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/erp-ledger/inventory"
)

// =============================================================================
// ITEMS
// =============================================================================

func TestCatalog_ItemCodeUnique(t *testing.T) {
	f := newFixture(t)
	f.rawItem(t, "STEEL-01")

	_, err := f.catalog.CreateItem(f.ctx, inventory.Item{
		Code: "STEEL-01", Name: "dup", Type: inventory.ItemRaw, Source: inventory.SourceBuy,
	})

	assert.ErrorIs(t, err, inventory.ErrConflict)
}

func TestCatalog_ItemValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreateItem(f.ctx, inventory.Item{Code: "X", Name: "x", Type: "GADGET", Source: inventory.SourceBuy})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = f.catalog.CreateItem(f.ctx, inventory.Item{Name: "x", Type: inventory.ItemRaw, Source: inventory.SourceBuy})
	assert.ErrorIs(t, err, inventory.ErrValidation)

	_, err = f.catalog.CreateItem(f.ctx, inventory.Item{Code: "X", Name: "x", Type: inventory.ItemRaw, Source: inventory.SourceBuy, Cost: dec("-1")})
	assert.ErrorIs(t, err, inventory.ErrValidation)
}

func TestCatalog_UpdateItemKeepsIdentity(t *testing.T) {
	f := newFixture(t)
	id := f.rawItem(t, "STEEL-01")
	before, err := f.catalog.GetItem(f.ctx, id)
	require.NoError(t, err)

	before.Name = "Cold rolled steel"
	before.Cost = dec("1.2345")
	_, err = f.catalog.UpdateItem(f.ctx, *before)
	require.NoError(t, err)

	after, err := f.catalog.GetItem(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Cold rolled steel", after.Name)
	assertQty(t, "1.2345", after.Cost)
	assert.True(t, before.CreatedAt.Equal(after.CreatedAt))
}

func TestCatalog_DeleteReferencedItemRefused(t *testing.T) {
	f := newFixture(t)
	used := f.rawItem(t, "STEEL-01")
	unused := f.rawItem(t, "SPARE-01")
	f.receive(t, "2025-09-01", used, "1")

	err := f.catalog.DeleteItem(f.ctx, used)
	assert.ErrorIs(t, err, inventory.ErrConflict)

	require.NoError(t, f.catalog.DeleteItem(f.ctx, unused))
	_, err = f.catalog.GetItem(f.ctx, unused)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestCatalog_BomMaterialCountsAsReference(t *testing.T) {
	f := newFixture(t)
	bracket := f.rawItem(t, "P-100")
	assy := f.item(t, "W-100", inventory.ItemSub, inventory.ProcessWeld)
	f.bom(t, assy, "2025-09", bomLine(bracket, "1"))

	assert.ErrorIs(t, f.catalog.DeleteItem(f.ctx, bracket), inventory.ErrConflict)
}

// =============================================================================
// PARTNERS
// =============================================================================

func TestCatalog_PartnerRegistrationNumberUniqueWhenSet(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreatePartner(f.ctx, inventory.Partner{Name: "A", Type: inventory.PartnerVendor, RegistrationNumber: "123-45"})
	require.NoError(t, err)
	_, err = f.catalog.CreatePartner(f.ctx, inventory.Partner{Name: "B", Type: inventory.PartnerVendor, RegistrationNumber: "123-45"})
	assert.ErrorIs(t, err, inventory.ErrConflict)

	// Any number of partners may leave it empty.
	f.partner(t, "C")
	f.partner(t, "D")
}

func TestCatalog_DeletePartnerWithTransactionsRefused(t *testing.T) {
	f := newFixture(t)
	steel := f.rawItem(t, "STEEL-01")
	vendor := f.partner(t, "POSCO")
	_, err := f.pipeline.Commit(f.ctx, inventory.CommitRequest{
		Date: inventory.MustDate("2025-09-01"), Type: inventory.TxPurchaseReceipt, PartnerID: vendor,
		Lines: []inventory.TxLine{line(steel, "1")},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.catalog.DeletePartner(f.ctx, vendor), inventory.ErrConflict)
}

// =============================================================================
// BOMS
// =============================================================================

func TestCatalog_BomUniquePerItemAndMonth(t *testing.T) {
	f := newFixture(t)
	bracket := f.rawItem(t, "P-100")
	assy := f.item(t, "W-100", inventory.ItemSub, inventory.ProcessWeld)
	f.bom(t, assy, "2025-09", bomLine(bracket, "1"))

	_, err := f.catalog.CreateBom(f.ctx, inventory.BomHeader{ItemID: assy, Version: "2025-09"})
	assert.ErrorIs(t, err, inventory.ErrConflict)

	// The next month is a new version.
	f.bom(t, assy, "2025-10", bomLine(bracket, "2"))
}

func TestCatalog_BomValidation(t *testing.T) {
	f := newFixture(t)
	bracket := f.rawItem(t, "P-100")
	assy := f.item(t, "W-100", inventory.ItemSub, inventory.ProcessWeld)

	cases := map[string]inventory.BomHeader{
		"bad month":        {ItemID: assy, Version: "2025-13"},
		"self consumption": {ItemID: assy, Version: "2025-09", Lines: []inventory.BomLine{bomLine(assy, "1")}},
		"negative qty":     {ItemID: assy, Version: "2025-09", Lines: []inventory.BomLine{bomLine(bracket, "-1")}},
		"unknown material": {ItemID: assy, Version: "2025-09", Lines: []inventory.BomLine{bomLine("ghost", "1")}},
		"duplicate":        {ItemID: assy, Version: "2025-09", Lines: []inventory.BomLine{bomLine(bracket, "1"), bomLine(bracket, "1")}},
	}
	for name, bom := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.catalog.CreateBom(f.ctx, bom)
			assert.ErrorIs(t, err, inventory.ErrValidation)
		})
	}
}

func TestCatalog_FixedBomIsFrozen(t *testing.T) {
	f := newFixture(t)
	bracket := f.rawItem(t, "P-100")
	assy := f.item(t, "W-100", inventory.ItemSub, inventory.ProcessWeld)
	paint := f.item(t, "PT-100", inventory.ItemProduct, inventory.ProcessPaint)
	bom := f.bom(t, assy, "2025-09", bomLine(bracket, "1"))
	f.bom(t, paint, "2025-09", bomLine(assy, "1"))

	fixed, err := f.catalog.BomFixedForMonth(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.False(t, fixed)

	n, err := f.catalog.FixBoms(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fixed, err = f.catalog.BomFixedForMonth(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.True(t, fixed)

	_, err = f.catalog.UpdateBom(f.ctx, bom.ID, []inventory.BomLine{bomLine(bracket, "3")})
	assert.ErrorIs(t, err, inventory.ErrImmutable)
	assert.ErrorIs(t, f.catalog.DeleteBom(f.ctx, bom.ID), inventory.ErrImmutable)

	got, err := f.catalog.GetBom(f.ctx, bom.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assertQty(t, "1", got.Lines[0].Quantity)
}

func TestCatalog_UpdateBomReplacesLines(t *testing.T) {
	f := newFixture(t)
	bracket := f.rawItem(t, "P-100")
	nut := f.rawItem(t, "NUT-01")
	assy := f.item(t, "W-100", inventory.ItemSub, inventory.ProcessWeld)
	bom := f.bom(t, assy, "2025-09", bomLine(bracket, "1"))

	_, err := f.catalog.UpdateBom(f.ctx, bom.ID, []inventory.BomLine{bomLine(nut, "4"), bomLine(bracket, "2")})
	require.NoError(t, err)

	got, err := f.catalog.GetBom(f.ctx, bom.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, nut, got.Lines[0].MaterialID)
	assertQty(t, "2", got.Lines[1].Quantity)
}

func TestCatalog_FixBomsOnEmptyMonth(t *testing.T) {
	f := newFixture(t)
	n, err := f.catalog.FixBoms(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.Zero(t, n)

	fixed, err := f.catalog.BomFixedForMonth(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.True(t, fixed)
}

// =============================================================================
// PRICES
// =============================================================================

func TestCatalog_PricesFrozenOnceFixed(t *testing.T) {
	f := newFixture(t)
	steel := f.rawItem(t, "STEEL-01")

	price, err := f.catalog.CreatePrice(f.ctx, inventory.MonthlyPrice{
		Month: "2025-09", ItemID: steel, Price: dec("1250.50"), Type: inventory.PricePurchase,
	})
	require.NoError(t, err)

	_, err = f.catalog.CreatePrice(f.ctx, inventory.MonthlyPrice{
		Month: "2025-09", ItemID: steel, Price: dec("1"), Type: inventory.PricePurchase,
	})
	assert.ErrorIs(t, err, inventory.ErrConflict, "one price per month, item and type")

	first, err := f.catalog.FixPrices(f.ctx, "2025-09")
	require.NoError(t, err)
	require.True(t, first.IsFixed)
	require.NotNil(t, first.FixedAt)

	second, err := f.catalog.FixPrices(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.True(t, first.FixedAt.Equal(*second.FixedAt), "fixing twice keeps the first time")

	price.Price = dec("1300")
	_, err = f.catalog.UpdatePrice(f.ctx, *price)
	assert.ErrorIs(t, err, inventory.ErrImmutable)
	assert.ErrorIs(t, f.catalog.DeletePrice(f.ctx, price.ID), inventory.ErrImmutable)

	_, err = f.catalog.CreatePrice(f.ctx, inventory.MonthlyPrice{
		Month: "2025-09", ItemID: steel, Price: dec("1400"), Type: inventory.PriceSales,
	})
	assert.ErrorIs(t, err, inventory.ErrImmutable)

	// October is still open.
	_, err = f.catalog.CreatePrice(f.ctx, inventory.MonthlyPrice{
		Month: "2025-10", ItemID: steel, Price: dec("1300"), Type: inventory.PricePurchase,
	})
	assert.NoError(t, err)
}

func TestCatalog_PriceStatusDefaultsToOpen(t *testing.T) {
	f := newFixture(t)
	status, err := f.catalog.PriceStatus(f.ctx, "2025-09")
	require.NoError(t, err)
	assert.False(t, status.IsFixed)
	assert.Nil(t, status.FixedAt)

	_, err = f.catalog.PriceStatus(f.ctx, "September")
	assert.ErrorIs(t, err, inventory.ErrValidation)
}
