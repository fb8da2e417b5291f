/*
catalog.go - Master data: items, partners, BOMs and monthly prices

GUARDS:
  - Items cannot be deleted while a BOM, transaction line or snapshot line
    references them
  - A fixed BOM header and its lines never change again
  - Prices of a fixed month never change again
  - Fixing is one-way; nothing un-fixes

  Guards and writes share a store transaction.
*/
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Catalog struct {
	Store TxStore
	Log   logrus.FieldLogger
	Now   func() time.Time
}

func NewCatalog(store TxStore, log logrus.FieldLogger) *Catalog {
	return &Catalog{Store: store, Log: log, Now: time.Now}
}

// =============================================================================
// ITEMS
// =============================================================================

func (c *Catalog) ListItems(ctx context.Context) ([]Item, error) {
	return c.Store.ListItems(ctx)
}

func (c *Catalog) GetItem(ctx context.Context, id ItemID) (*Item, error) {
	return c.Store.GetItem(ctx, id)
}

// CreateItem assigns an id and stores the item. Process defaults to NONE.
func (c *Catalog) CreateItem(ctx context.Context, item Item) (*Item, error) {
	item.ID = ItemID(NewID())
	item.CreatedAt = c.now()
	if item.Process == "" {
		item.Process = ProcessNone
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := c.Store.SaveItem(ctx, item); err != nil {
		return nil, err
	}
	c.logger().WithField("item_id", item.ID).Info("item created")
	return &item, nil
}

// UpdateItem replaces the mutable attributes of an existing item.
func (c *Catalog) UpdateItem(ctx context.Context, item Item) (*Item, error) {
	if item.Process == "" {
		item.Process = ProcessNone
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	err := c.Store.WithTx(ctx, func(store Store) error {
		existing, err := store.GetItem(ctx, item.ID)
		if err != nil {
			return err
		}
		item.CreatedAt = existing.CreatedAt
		return store.SaveItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Catalog) DeleteItem(ctx context.Context, id ItemID) error {
	return c.Store.WithTx(ctx, func(store Store) error {
		if _, err := store.GetItem(ctx, id); err != nil {
			return err
		}
		used, err := store.ItemReferenced(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return &ConflictError{Resource: "item", Key: string(id), Reason: "referenced by BOM, transaction or snapshot lines"}
		}
		return store.DeleteItem(ctx, id)
	})
}

func validateItem(item Item) error {
	switch {
	case strings.TrimSpace(item.Code) == "":
		return invalid("code", "code is required")
	case strings.TrimSpace(item.Name) == "":
		return invalid("name", "name is required")
	case !item.Type.Valid():
		return invalid("type", "unknown item type %q", item.Type)
	case !item.Process.Valid():
		return invalid("process", "unknown process %q", item.Process)
	case !item.Source.Valid():
		return invalid("source", "unknown source %q", item.Source)
	case item.Cost.IsNegative():
		return invalid("cost", "cost cannot be negative")
	}
	return nil
}

// =============================================================================
// PARTNERS
// =============================================================================

func (c *Catalog) ListPartners(ctx context.Context) ([]Partner, error) {
	return c.Store.ListPartners(ctx)
}

func (c *Catalog) GetPartner(ctx context.Context, id PartnerID) (*Partner, error) {
	return c.Store.GetPartner(ctx, id)
}

func (c *Catalog) CreatePartner(ctx context.Context, p Partner) (*Partner, error) {
	p.ID = PartnerID(NewID())
	p.CreatedAt = c.now()
	if err := validatePartner(p); err != nil {
		return nil, err
	}
	if err := c.Store.SavePartner(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) UpdatePartner(ctx context.Context, p Partner) (*Partner, error) {
	if err := validatePartner(p); err != nil {
		return nil, err
	}
	err := c.Store.WithTx(ctx, func(store Store) error {
		existing, err := store.GetPartner(ctx, p.ID)
		if err != nil {
			return err
		}
		p.CreatedAt = existing.CreatedAt
		return store.SavePartner(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePartner fails with a conflict while transactions reference the partner.
func (c *Catalog) DeletePartner(ctx context.Context, id PartnerID) error {
	return c.Store.DeletePartner(ctx, id)
}

func validatePartner(p Partner) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "name is required")
	}
	if !p.Type.Valid() {
		return invalid("type", "unknown partner type %q", p.Type)
	}
	return nil
}

// =============================================================================
// BILLS OF MATERIALS
// =============================================================================

// ListBoms returns the BOMs of a month, or every version when month is empty.
func (c *Catalog) ListBoms(ctx context.Context, month Month) ([]BomHeader, error) {
	return c.Store.ListBoms(ctx, month)
}

func (c *Catalog) GetBom(ctx context.Context, id BomID) (*BomHeader, error) {
	return c.Store.GetBom(ctx, id)
}

// CreateBom stores a new, unfixed BOM version. A second header for the
// same item and month is a conflict.
func (c *Catalog) CreateBom(ctx context.Context, bom BomHeader) (*BomHeader, error) {
	bom.ID = BomID(NewID())
	bom.IsFixed = false
	bom.CreatedAt = c.now()
	bom.Lines = bomLines(bom.ID, bom.Lines)
	if err := validateBom(bom); err != nil {
		return nil, err
	}

	err := c.Store.WithTx(ctx, func(store Store) error {
		if err := checkBomItems(ctx, store, bom); err != nil {
			return err
		}
		if _, err := store.FindBom(ctx, bom.ItemID, bom.Version); err == nil {
			return &ConflictError{Resource: "bom", Key: fmt.Sprintf("%s@%s", bom.ItemID, bom.Version), Reason: "already exists"}
		} else if !IsNotFound(err) {
			return err
		}
		return store.SaveBom(ctx, &bom)
	})
	if err != nil {
		return nil, err
	}
	c.logger().WithFields(logrus.Fields{"item_id": bom.ItemID, "month": bom.Version}).Info("BOM created")
	return &bom, nil
}

// UpdateBom replaces the lines of an unfixed BOM.
func (c *Catalog) UpdateBom(ctx context.Context, id BomID, lines []BomLine) (*BomHeader, error) {
	var bom *BomHeader
	err := c.Store.WithTx(ctx, func(store Store) error {
		var err error
		if bom, err = store.GetBom(ctx, id); err != nil {
			return err
		}
		if bom.IsFixed {
			return &ImmutabilityError{Resource: "bom", ID: string(id), Reason: "BOM is fixed"}
		}
		bom.Lines = bomLines(bom.ID, lines)
		if err := validateBom(*bom); err != nil {
			return err
		}
		if err := checkBomItems(ctx, store, *bom); err != nil {
			return err
		}
		return store.SaveBom(ctx, bom)
	})
	if err != nil {
		return nil, err
	}
	return bom, nil
}

func (c *Catalog) DeleteBom(ctx context.Context, id BomID) error {
	return c.Store.WithTx(ctx, func(store Store) error {
		bom, err := store.GetBom(ctx, id)
		if err != nil {
			return err
		}
		if bom.IsFixed {
			return &ImmutabilityError{Resource: "bom", ID: string(id), Reason: "BOM is fixed"}
		}
		return store.DeleteBom(ctx, id)
	})
}

// FixBoms freezes every BOM of the month and returns how many headers it has.
func (c *Catalog) FixBoms(ctx context.Context, month Month) (int, error) {
	if _, err := ParseMonth(string(month)); err != nil {
		return 0, err
	}
	n, err := c.Store.FixBoms(ctx, month)
	if err != nil {
		return 0, err
	}
	c.logger().WithFields(logrus.Fields{"month": month, "count": n}).Info("BOMs fixed")
	return n, nil
}

// BomFixedForMonth is true when every BOM of the month is fixed. A month
// without BOMs counts as fixed.
func (c *Catalog) BomFixedForMonth(ctx context.Context, month Month) (bool, error) {
	return bomFixedForMonth(ctx, c.Store, month)
}

func bomFixedForMonth(ctx context.Context, store CatalogStore, month Month) (bool, error) {
	boms, err := store.ListBoms(ctx, month)
	if err != nil {
		return false, err
	}
	for _, b := range boms {
		if !b.IsFixed {
			return false, nil
		}
	}
	return true, nil
}

func bomLines(id BomID, lines []BomLine) []BomLine {
	out := make([]BomLine, len(lines))
	for i, l := range lines {
		l.ID = BomLineID(NewID())
		l.BomHeaderID = id
		out[i] = l
	}
	return out
}

func validateBom(bom BomHeader) error {
	if bom.ItemID == "" {
		return invalid("itemId", "item is required")
	}
	if _, err := ParseMonth(string(bom.Version)); err != nil {
		return invalid("version", "invalid month %q (use YYYY-MM)", bom.Version)
	}
	seen := make(map[ItemID]bool, len(bom.Lines))
	for i, l := range bom.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case l.MaterialID == "":
			return invalid(field+".materialId", "material is required")
		case l.MaterialID == bom.ItemID:
			return invalid(field+".materialId", "an item cannot consume itself")
		case seen[l.MaterialID]:
			return invalid(field+".materialId", "material %s listed twice", l.MaterialID)
		case l.Quantity.IsNegative():
			return invalid(field+".quantity", "quantity cannot be negative")
		case l.Process != "" && !l.Process.Valid():
			return invalid(field+".process", "unknown process %q", l.Process)
		}
		seen[l.MaterialID] = true
	}
	return nil
}

func checkBomItems(ctx context.Context, store CatalogStore, bom BomHeader) error {
	ids := []ItemID{bom.ItemID}
	for _, l := range bom.Lines {
		ids = append(ids, l.MaterialID)
	}
	items, err := store.ItemsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if _, ok := items[bom.ItemID]; !ok {
		return invalid("itemId", "unknown item %s", bom.ItemID)
	}
	for i, l := range bom.Lines {
		if _, ok := items[l.MaterialID]; !ok {
			return invalid(fmt.Sprintf("lines[%d].materialId", i), "unknown item %s", l.MaterialID)
		}
	}
	return nil
}

// =============================================================================
// MONTHLY PRICES
// =============================================================================

func (c *Catalog) ListPrices(ctx context.Context, month Month) ([]MonthlyPrice, error) {
	return c.Store.ListPrices(ctx, month)
}

func (c *Catalog) CreatePrice(ctx context.Context, p MonthlyPrice) (*MonthlyPrice, error) {
	p.ID = PriceID(NewID())
	if err := validatePrice(p); err != nil {
		return nil, err
	}
	err := c.Store.WithTx(ctx, func(store Store) error {
		if err := checkPriceMonthOpen(ctx, store, p.Month); err != nil {
			return err
		}
		if _, err := store.GetItem(ctx, p.ItemID); err != nil {
			if IsNotFound(err) {
				return invalid("itemId", "unknown item %s", p.ItemID)
			}
			return err
		}
		return store.SavePrice(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePrice changes a price. Neither the old nor the new month may be fixed.
func (c *Catalog) UpdatePrice(ctx context.Context, p MonthlyPrice) (*MonthlyPrice, error) {
	if err := validatePrice(p); err != nil {
		return nil, err
	}
	err := c.Store.WithTx(ctx, func(store Store) error {
		existing, err := store.GetPrice(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := checkPriceMonthOpen(ctx, store, existing.Month); err != nil {
			return err
		}
		if p.Month != existing.Month {
			if err := checkPriceMonthOpen(ctx, store, p.Month); err != nil {
				return err
			}
		}
		return store.SavePrice(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Catalog) DeletePrice(ctx context.Context, id PriceID) error {
	return c.Store.WithTx(ctx, func(store Store) error {
		existing, err := store.GetPrice(ctx, id)
		if err != nil {
			return err
		}
		if err := checkPriceMonthOpen(ctx, store, existing.Month); err != nil {
			return err
		}
		return store.DeletePrice(ctx, id)
	})
}

func (c *Catalog) PriceStatus(ctx context.Context, month Month) (*MonthlyPriceStatus, error) {
	if _, err := ParseMonth(string(month)); err != nil {
		return nil, err
	}
	return c.Store.GetPriceStatus(ctx, month)
}

// FixPrices freezes the prices of a month. Fixing twice keeps the first
// fixedAt.
func (c *Catalog) FixPrices(ctx context.Context, month Month) (*MonthlyPriceStatus, error) {
	if _, err := ParseMonth(string(month)); err != nil {
		return nil, err
	}
	var status *MonthlyPriceStatus
	err := c.Store.WithTx(ctx, func(store Store) error {
		var err error
		if status, err = store.GetPriceStatus(ctx, month); err != nil {
			return err
		}
		if status.IsFixed {
			return nil
		}
		now := c.now()
		status = &MonthlyPriceStatus{Month: month, IsFixed: true, FixedAt: &now}
		return store.SavePriceStatus(ctx, *status)
	})
	if err != nil {
		return nil, err
	}
	c.logger().WithField("month", month).Info("prices fixed")
	return status, nil
}

func (c *Catalog) PricesFixedForMonth(ctx context.Context, month Month) (bool, error) {
	return pricesFixedForMonth(ctx, c.Store, month)
}

func pricesFixedForMonth(ctx context.Context, store CatalogStore, month Month) (bool, error) {
	status, err := store.GetPriceStatus(ctx, month)
	if err != nil {
		return false, err
	}
	return status.IsFixed, nil
}

func checkPriceMonthOpen(ctx context.Context, store CatalogStore, month Month) error {
	fixed, err := pricesFixedForMonth(ctx, store, month)
	if err != nil {
		return err
	}
	if fixed {
		return &ImmutabilityError{Resource: "prices", ID: string(month), Reason: "month prices are fixed"}
	}
	return nil
}

func validatePrice(p MonthlyPrice) error {
	if _, err := ParseMonth(string(p.Month)); err != nil {
		return err
	}
	switch {
	case p.ItemID == "":
		return invalid("itemId", "item is required")
	case !p.Type.Valid():
		return invalid("type", "unknown price type %q", p.Type)
	case p.Price.IsNegative():
		return invalid("price", "price cannot be negative")
	}
	return nil
}

func (c *Catalog) logger() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Catalog) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
