package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/erp-ledger/inventory"
)

// =============================================================================
// ITEMS
// =============================================================================

type itemRow struct {
	ID        string          `db:"id"`
	Code      string          `db:"code"`
	Name      string          `db:"name"`
	Spec      string          `db:"spec"`
	Unit      string          `db:"unit"`
	Type      string          `db:"type"`
	Process   string          `db:"process"`
	Source    string          `db:"source"`
	Cost      decimal.Decimal `db:"cost"`
	CreatedAt string          `db:"created_at"`
}

func (r itemRow) toDomain() (inventory.Item, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return inventory.Item{}, corrupt("items", r.ID, err)
	}
	return inventory.Item{
		ID:        inventory.ItemID(r.ID),
		Code:      r.Code,
		Name:      r.Name,
		Spec:      r.Spec,
		Unit:      r.Unit,
		Type:      inventory.ItemType(r.Type),
		Process:   inventory.Process(r.Process),
		Source:    inventory.Source(r.Source),
		Cost:      r.Cost,
		CreatedAt: createdAt,
	}, nil
}

const itemColumns = `id, code, name, spec, unit, type, process, source, cost, created_at`

func (c *conn) ListItems(ctx context.Context) ([]inventory.Item, error) {
	var rows []itemRow
	if err := c.selectAll(ctx, &rows, `SELECT `+itemColumns+` FROM items ORDER BY code`); err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	out := make([]inventory.Item, len(rows))
	for i, r := range rows {
		item, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func (c *conn) GetItem(ctx context.Context, id inventory.ItemID) (*inventory.Item, error) {
	var row itemRow
	if err := c.get(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = ?`, string(id)); err != nil {
		return nil, mapError(err, "item", string(id))
	}
	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ItemsByIDs omits ids that do not exist.
func (c *conn) ItemsByIDs(ctx context.Context, ids []inventory.ItemID) (map[inventory.ItemID]inventory.Item, error) {
	out := make(map[inventory.ItemID]inventory.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []itemRow
	if err := c.selectIn(ctx, &rows, `SELECT `+itemColumns+` FROM items WHERE id IN (?)`, strs(ids)); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	for _, r := range rows {
		item, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[item.ID] = item
	}
	return out, nil
}

// SaveItem inserts or updates by id. A duplicate code is a conflict.
func (c *conn) SaveItem(ctx context.Context, item inventory.Item) error {
	_, err := c.exec(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			spec = excluded.spec,
			unit = excluded.unit,
			type = excluded.type,
			process = excluded.process,
			source = excluded.source,
			cost = excluded.cost`,
		string(item.ID), item.Code, item.Name, item.Spec, item.Unit,
		string(item.Type), string(item.Process), string(item.Source), item.Cost, formatTime(item.CreatedAt),
	)
	return mapError(err, "item", item.Code)
}

func (c *conn) DeleteItem(ctx context.Context, id inventory.ItemID) error {
	return c.deleteByID(ctx, "items", "item", string(id))
}

// ItemReferenced reports whether a BOM, transaction line or snapshot line
// points at the item.
func (c *conn) ItemReferenced(ctx context.Context, id inventory.ItemID) (bool, error) {
	var n int64
	err := c.get(ctx, &n, `
		SELECT COUNT(*) FROM (
			SELECT 1 AS ref FROM bom_headers WHERE item_id = ?
			UNION ALL SELECT 1 FROM bom_lines WHERE material_id = ?
			UNION ALL SELECT 1 FROM tx_lines WHERE item_id = ?
			UNION ALL SELECT 1 FROM inventory_snapshot_lines WHERE item_id = ?
		) refs`,
		string(id), string(id), string(id), string(id))
	if err != nil {
		return false, fmt.Errorf("failed to check item references: %w", err)
	}
	return n > 0, nil
}

// =============================================================================
// PARTNERS
// =============================================================================

type partnerRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Type               string         `db:"type"`
	RegistrationNumber sql.NullString `db:"registration_number"`
	Contact            string         `db:"contact"`
	CreatedAt          string         `db:"created_at"`
}

func (r partnerRow) toDomain() (inventory.Partner, error) {
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return inventory.Partner{}, corrupt("partners", r.ID, err)
	}
	return inventory.Partner{
		ID:                 inventory.PartnerID(r.ID),
		Name:               r.Name,
		Type:               inventory.PartnerType(r.Type),
		RegistrationNumber: r.RegistrationNumber.String,
		Contact:            r.Contact,
		CreatedAt:          createdAt,
	}, nil
}

const partnerColumns = `id, name, type, registration_number, contact, created_at`

func (c *conn) ListPartners(ctx context.Context) ([]inventory.Partner, error) {
	var rows []partnerRow
	if err := c.selectAll(ctx, &rows, `SELECT `+partnerColumns+` FROM partners ORDER BY name, id`); err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	out := make([]inventory.Partner, len(rows))
	for i, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (c *conn) GetPartner(ctx context.Context, id inventory.PartnerID) (*inventory.Partner, error) {
	var row partnerRow
	if err := c.get(ctx, &row, `SELECT `+partnerColumns+` FROM partners WHERE id = ?`, string(id)); err != nil {
		return nil, mapError(err, "partner", string(id))
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *conn) PartnersByIDs(ctx context.Context, ids []inventory.PartnerID) (map[inventory.PartnerID]inventory.Partner, error) {
	out := make(map[inventory.PartnerID]inventory.Partner, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []partnerRow
	if err := c.selectIn(ctx, &rows, `SELECT `+partnerColumns+` FROM partners WHERE id IN (?)`, strs(ids)); err != nil {
		return nil, fmt.Errorf("failed to load partners: %w", err)
	}
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}

// SavePartner inserts or updates by id. An empty registration number is
// stored as NULL so it never collides.
func (c *conn) SavePartner(ctx context.Context, p inventory.Partner) error {
	_, err := c.exec(ctx, `
		INSERT INTO partners (`+partnerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			registration_number = excluded.registration_number,
			contact = excluded.contact`,
		string(p.ID), p.Name, string(p.Type), nullString(p.RegistrationNumber), p.Contact, formatTime(p.CreatedAt),
	)
	key := p.RegistrationNumber
	if key == "" {
		key = string(p.ID)
	}
	return mapError(err, "partner", key)
}

func (c *conn) DeletePartner(ctx context.Context, id inventory.PartnerID) error {
	return c.deleteByID(ctx, "partners", "partner", string(id))
}

// =============================================================================
// BILLS OF MATERIALS
// =============================================================================

type bomHeaderRow struct {
	ID        string `db:"id"`
	ItemID    string `db:"item_id"`
	Version   string `db:"version"`
	IsFixed   bool   `db:"is_fixed"`
	CreatedAt string `db:"created_at"`
}

type bomLineRow struct {
	ID          string          `db:"id"`
	BomHeaderID string          `db:"bom_header_id"`
	MaterialID  string          `db:"material_id"`
	Quantity    decimal.Decimal `db:"quantity"`
	Process     string          `db:"process"`
}

const (
	bomHeaderColumns = `id, item_id, version, is_fixed, created_at`
	bomLineColumns   = `id, bom_header_id, material_id, quantity, process`
)

// ListBoms returns the headers of a month with their lines; an empty month
// returns every version.
func (c *conn) ListBoms(ctx context.Context, month inventory.Month) ([]inventory.BomHeader, error) {
	query := `SELECT ` + bomHeaderColumns + ` FROM bom_headers`
	var args []any
	if month != "" {
		query += ` WHERE version = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY version DESC, item_id`

	var rows []bomHeaderRow
	if err := c.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list BOMs: %w", err)
	}
	return c.bomsWithLines(ctx, rows)
}

func (c *conn) GetBom(ctx context.Context, id inventory.BomID) (*inventory.BomHeader, error) {
	return c.oneBom(ctx, string(id), `SELECT `+bomHeaderColumns+` FROM bom_headers WHERE id = ?`, string(id))
}

func (c *conn) FindBom(ctx context.Context, itemID inventory.ItemID, month inventory.Month) (*inventory.BomHeader, error) {
	return c.oneBom(ctx, fmt.Sprintf("%s@%s", itemID, month),
		`SELECT `+bomHeaderColumns+` FROM bom_headers WHERE item_id = ? AND version = ?`,
		string(itemID), string(month))
}

func (c *conn) oneBom(ctx context.Context, key, query string, args ...any) (*inventory.BomHeader, error) {
	var row bomHeaderRow
	if err := c.get(ctx, &row, query, args...); err != nil {
		return nil, mapError(err, "bom", key)
	}
	boms, err := c.bomsWithLines(ctx, []bomHeaderRow{row})
	if err != nil {
		return nil, err
	}
	return &boms[0], nil
}

func (c *conn) bomsWithLines(ctx context.Context, headers []bomHeaderRow) ([]inventory.BomHeader, error) {
	out := make([]inventory.BomHeader, len(headers))
	if len(headers) == 0 {
		return out, nil
	}

	ids := make([]string, len(headers))
	for i, h := range headers {
		ids[i] = h.ID
	}
	var rows []bomLineRow
	err := c.selectIn(ctx, &rows, `
		SELECT `+bomLineColumns+` FROM bom_lines
		WHERE bom_header_id IN (?)
		ORDER BY bom_header_id, line_no`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load BOM lines: %w", err)
	}
	lines := make(map[string][]inventory.BomLine, len(headers))
	for _, r := range rows {
		lines[r.BomHeaderID] = append(lines[r.BomHeaderID], inventory.BomLine{
			ID:          inventory.BomLineID(r.ID),
			BomHeaderID: inventory.BomID(r.BomHeaderID),
			MaterialID:  inventory.ItemID(r.MaterialID),
			Quantity:    r.Quantity,
			Process:     inventory.Process(r.Process),
		})
	}

	for i, h := range headers {
		createdAt, err := parseTime(h.CreatedAt)
		if err != nil {
			return nil, corrupt("bom_headers", h.ID, err)
		}
		out[i] = inventory.BomHeader{
			ID:        inventory.BomID(h.ID),
			ItemID:    inventory.ItemID(h.ItemID),
			Version:   inventory.Month(h.Version),
			IsFixed:   h.IsFixed,
			CreatedAt: createdAt,
			Lines:     lines[h.ID],
		}
	}
	return out, nil
}

// SaveBom upserts the header and replaces all of its lines.
func (c *conn) SaveBom(ctx context.Context, bom *inventory.BomHeader) error {
	key := fmt.Sprintf("%s@%s", bom.ItemID, bom.Version)
	_, err := c.exec(ctx, `
		INSERT INTO bom_headers (`+bomHeaderColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET is_fixed = excluded.is_fixed`,
		string(bom.ID), string(bom.ItemID), string(bom.Version), bom.IsFixed, formatTime(bom.CreatedAt),
	)
	if err != nil {
		return mapError(err, "bom", key)
	}

	if _, err := c.exec(ctx, `DELETE FROM bom_lines WHERE bom_header_id = ?`, string(bom.ID)); err != nil {
		return fmt.Errorf("failed to replace BOM lines: %w", err)
	}
	for i, l := range bom.Lines {
		_, err := c.exec(ctx, `
			INSERT INTO bom_lines (id, bom_header_id, line_no, material_id, quantity, process)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(l.ID), string(bom.ID), i+1, string(l.MaterialID), l.Quantity, string(l.Process),
		)
		if err != nil {
			return mapError(err, "bom line", string(l.MaterialID))
		}
	}
	return nil
}

func (c *conn) DeleteBom(ctx context.Context, id inventory.BomID) error {
	if _, err := c.exec(ctx, `DELETE FROM bom_lines WHERE bom_header_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete BOM lines: %w", err)
	}
	return c.deleteByID(ctx, "bom_headers", "bom", string(id))
}

func (c *conn) FixBoms(ctx context.Context, month inventory.Month) (int, error) {
	if _, err := c.exec(ctx, `UPDATE bom_headers SET is_fixed = ? WHERE version = ?`, true, string(month)); err != nil {
		return 0, fmt.Errorf("failed to fix BOMs: %w", err)
	}
	var n int
	if err := c.get(ctx, &n, `SELECT COUNT(*) FROM bom_headers WHERE version = ?`, string(month)); err != nil {
		return 0, fmt.Errorf("failed to count BOMs: %w", err)
	}
	return n, nil
}

// =============================================================================
// MONTHLY PRICES
// =============================================================================

type priceRow struct {
	ID     string          `db:"id"`
	Month  string          `db:"month"`
	ItemID string          `db:"item_id"`
	Price  decimal.Decimal `db:"price"`
	Type   string          `db:"type"`
}

func (r priceRow) toDomain() inventory.MonthlyPrice {
	return inventory.MonthlyPrice{
		ID:     inventory.PriceID(r.ID),
		Month:  inventory.Month(r.Month),
		ItemID: inventory.ItemID(r.ItemID),
		Price:  r.Price,
		Type:   inventory.PriceType(r.Type),
	}
}

const priceColumns = `id, month, item_id, price, type`

func (c *conn) ListPrices(ctx context.Context, month inventory.Month) ([]inventory.MonthlyPrice, error) {
	query := `SELECT ` + priceColumns + ` FROM monthly_prices`
	var args []any
	if month != "" {
		query += ` WHERE month = ?`
		args = append(args, string(month))
	}
	query += ` ORDER BY month DESC, item_id, type`

	var rows []priceRow
	if err := c.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	out := make([]inventory.MonthlyPrice, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func (c *conn) GetPrice(ctx context.Context, id inventory.PriceID) (*inventory.MonthlyPrice, error) {
	var row priceRow
	if err := c.get(ctx, &row, `SELECT `+priceColumns+` FROM monthly_prices WHERE id = ?`, string(id)); err != nil {
		return nil, mapError(err, "price", string(id))
	}
	p := row.toDomain()
	return &p, nil
}

// SavePrice inserts or updates by id. One price per month, item and type.
func (c *conn) SavePrice(ctx context.Context, p inventory.MonthlyPrice) error {
	_, err := c.exec(ctx, `
		INSERT INTO monthly_prices (`+priceColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			month = excluded.month,
			item_id = excluded.item_id,
			price = excluded.price,
			type = excluded.type`,
		string(p.ID), string(p.Month), string(p.ItemID), p.Price, string(p.Type),
	)
	return mapError(err, "price", fmt.Sprintf("%s/%s/%s", p.Month, p.ItemID, p.Type))
}

func (c *conn) DeletePrice(ctx context.Context, id inventory.PriceID) error {
	return c.deleteByID(ctx, "monthly_prices", "price", string(id))
}

type priceStatusRow struct {
	Month   string         `db:"month"`
	IsFixed bool           `db:"is_fixed"`
	FixedAt sql.NullString `db:"fixed_at"`
}

func (c *conn) GetPriceStatus(ctx context.Context, month inventory.Month) (*inventory.MonthlyPriceStatus, error) {
	var row priceStatusRow
	err := c.get(ctx, &row, `SELECT month, is_fixed, fixed_at FROM monthly_price_status WHERE month = ?`, string(month))
	if errors.Is(err, sql.ErrNoRows) {
		return &inventory.MonthlyPriceStatus{Month: month}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read price status: %w", err)
	}
	fixedAt, err := parseNullTime(row.FixedAt)
	if err != nil {
		return nil, corrupt("monthly_price_status", row.Month, err)
	}
	return &inventory.MonthlyPriceStatus{
		Month:   inventory.Month(row.Month),
		IsFixed: row.IsFixed,
		FixedAt: fixedAt,
	}, nil
}

func (c *conn) SavePriceStatus(ctx context.Context, s inventory.MonthlyPriceStatus) error {
	fixedAt := sql.NullString{}
	if s.FixedAt != nil {
		fixedAt = sql.NullString{String: formatTime(*s.FixedAt), Valid: true}
	}
	_, err := c.exec(ctx, `
		INSERT INTO monthly_price_status (month, is_fixed, fixed_at)
		VALUES (?, ?, ?)
		ON CONFLICT (month) DO UPDATE SET
			is_fixed = excluded.is_fixed,
			fixed_at = excluded.fixed_at`,
		string(s.Month), s.IsFixed, fixedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save price status: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// deleteByID deletes one row. A missing row is NotFound; a row still
// referenced elsewhere is a conflict.
func (c *conn) deleteByID(ctx context.Context, table, resource, id string) error {
	res, err := c.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return mapError(err, resource, id)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &inventory.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}
