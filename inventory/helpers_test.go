package inventory_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/erp-ledger/inventory"
	"github.com/warp/erp-ledger/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	ctx      context.Context
	store    *sqlstore.Store
	catalog  *inventory.Catalog
	pipeline *inventory.Pipeline
	closer   *inventory.Closer
	ledger   *inventory.Ledger
}

// newFixture wires the engine to an in-memory SQLite store. Master-data
// preconditions for closing are off; tests that need them turn them on.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := sqlstore.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	now := steppingClock()

	pipeline := inventory.NewPipeline(store, log)
	pipeline.Now = now

	closer := inventory.NewCloser(store, log)
	closer.RequireFixedMasters = false
	closer.Now = now

	catalog := inventory.NewCatalog(store, log)
	catalog.Now = now

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		catalog:  catalog,
		pipeline: pipeline,
		closer:   closer,
		ledger:   inventory.NewLedger(store),
	}
}

// steppingClock advances one second per call so creation order is stable.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func (f *fixture) item(t *testing.T, code string, typ inventory.ItemType, process inventory.Process) inventory.ItemID {
	t.Helper()
	item, err := f.catalog.CreateItem(f.ctx, inventory.Item{
		Code:    code,
		Name:    code + " part",
		Unit:    "EA",
		Type:    typ,
		Process: process,
		Source:  inventory.SourceMake,
	})
	require.NoError(t, err)
	return item.ID
}

func (f *fixture) rawItem(t *testing.T, code string) inventory.ItemID {
	t.Helper()
	return f.item(t, code, inventory.ItemRaw, inventory.ProcessNone)
}

func (f *fixture) partner(t *testing.T, name string) inventory.PartnerID {
	t.Helper()
	p, err := f.catalog.CreatePartner(f.ctx, inventory.Partner{Name: name, Type: inventory.PartnerBoth})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) bom(t *testing.T, itemID inventory.ItemID, month string, lines ...inventory.BomLine) *inventory.BomHeader {
	t.Helper()
	bom, err := f.catalog.CreateBom(f.ctx, inventory.BomHeader{
		ItemID:  itemID,
		Version: inventory.MustMonth(month),
		Lines:   lines,
	})
	require.NoError(t, err)
	return bom
}

func (f *fixture) commit(t *testing.T, date string, typ inventory.TransactionType, lines ...inventory.TxLine) *inventory.Transaction {
	t.Helper()
	res, err := f.pipeline.Commit(f.ctx, inventory.CommitRequest{
		Date:  inventory.MustDate(date),
		Type:  typ,
		Lines: lines,
	})
	require.NoError(t, err)
	return res.Transaction
}

func (f *fixture) receive(t *testing.T, date string, itemID inventory.ItemID, qty string) *inventory.Transaction {
	t.Helper()
	return f.commit(t, date, inventory.TxPurchaseReceipt, line(itemID, qty))
}

func (f *fixture) stock(t *testing.T, itemID inventory.ItemID, date string) decimal.Decimal {
	t.Helper()
	qty, err := f.ledger.Inventory(f.ctx, itemID, inventory.MustDate(date))
	require.NoError(t, err)
	return qty
}

func line(itemID inventory.ItemID, qty string) inventory.TxLine {
	return inventory.TxLine{ItemID: itemID, Quantity: dec(qty)}
}

func bomLine(materialID inventory.ItemID, qty string) inventory.BomLine {
	return inventory.BomLine{MaterialID: materialID, Quantity: dec(qty)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertQty(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
