package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/erp-ledger/inventory"
)

// =============================================================================
// TRANSACTION LOG (inventory.LogStore interface)
// =============================================================================

type transactionRow struct {
	ID        string         `db:"id"`
	Date      string         `db:"date"`
	Type      string         `db:"type"`
	PartnerID sql.NullString `db:"partner_id"`
	Remarks   string         `db:"remarks"`
	CreatedAt string         `db:"created_at"`
}

func (r transactionRow) toDomain() (inventory.Transaction, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return inventory.Transaction{}, corrupt("transactions", r.ID, err)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return inventory.Transaction{}, corrupt("transactions", r.ID, err)
	}
	return inventory.Transaction{
		ID:        inventory.TransactionID(r.ID),
		Date:      date,
		Type:      inventory.TransactionType(r.Type),
		PartnerID: inventory.PartnerID(r.PartnerID.String),
		Remarks:   r.Remarks,
		CreatedAt: createdAt,
	}, nil
}

type txLineRow struct {
	ID            string              `db:"id"`
	TransactionID string              `db:"transaction_id"`
	LineNo        int                 `db:"line_no"`
	ItemID        string              `db:"item_id"`
	Quantity      decimal.Decimal     `db:"quantity"`
	Price         decimal.NullDecimal `db:"price"`
	Amount        decimal.NullDecimal `db:"amount"`
}

func (r txLineRow) toDomain() inventory.TxLine {
	return inventory.TxLine{
		ID:            inventory.LineID(r.ID),
		TransactionID: inventory.TransactionID(r.TransactionID),
		LineNo:        r.LineNo,
		ItemID:        inventory.ItemID(r.ItemID),
		Quantity:      r.Quantity,
		Price:         r.Price,
		Amount:        r.Amount,
	}
}

const (
	transactionColumns = `id, date, type, partner_id, remarks, created_at`
	txLineColumns      = `id, transaction_id, line_no, item_id, quantity, price, amount`
)

// AppendTransaction writes the header and every line. Call it inside WithTx
// for all-or-nothing semantics.
func (c *conn) AppendTransaction(ctx context.Context, tx *inventory.Transaction) error {
	_, err := c.exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(tx.ID), tx.Date.String(), string(tx.Type), nullString(string(tx.PartnerID)),
		tx.Remarks, formatTime(tx.CreatedAt),
	)
	if err != nil {
		return mapError(err, "transaction", string(tx.ID))
	}

	for _, l := range tx.Lines {
		_, err := c.exec(ctx, `
			INSERT INTO tx_lines (`+txLineColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(l.ID), string(tx.ID), l.LineNo, string(l.ItemID), l.Quantity, l.Price, l.Amount,
		)
		if err != nil {
			return mapError(err, "transaction line", fmt.Sprintf("%s#%d", tx.ID, l.LineNo))
		}
	}
	return nil
}

// DeleteTransaction removes lines first, then the header.
func (c *conn) DeleteTransaction(ctx context.Context, id inventory.TransactionID) error {
	if _, err := c.exec(ctx, `DELETE FROM tx_lines WHERE transaction_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete transaction lines: %w", err)
	}
	res, err := c.exec(ctx, `DELETE FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return mapError(err, "transaction", string(id))
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return &inventory.NotFoundError{Resource: "transaction", ID: string(id)}
	}
	return nil
}

func (c *conn) GetTransaction(ctx context.Context, id inventory.TransactionID) (*inventory.Transaction, error) {
	var row transactionRow
	err := c.get(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return nil, mapError(err, "transaction", string(id))
	}

	tx, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	lines, err := c.linesOf(ctx, []string{row.ID})
	if err != nil {
		return nil, err
	}
	tx.Lines = lines[tx.ID]
	return &tx, nil
}

// ListTransactions returns matching headers with their lines, newest first.
func (c *conn) ListTransactions(ctx context.Context, f inventory.TransactionFilter) ([]inventory.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To.String())
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.PartnerID != "" {
		where = append(where, "partner_id = ?")
		args = append(args, string(f.PartnerID))
	}
	if f.ItemID != "" {
		where = append(where, "EXISTS (SELECT 1 FROM tx_lines l WHERE l.transaction_id = transactions.id AND l.item_id = ?)")
		args = append(args, string(f.ItemID))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	var rows []transactionRow
	if err := c.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if len(rows) == 0 {
		return []inventory.Transaction{}, nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	lines, err := c.linesOf(ctx, ids)
	if err != nil {
		return nil, err
	}

	txs := make([]inventory.Transaction, len(rows))
	for i, r := range rows {
		tx, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		txs[i] = tx
		txs[i].Lines = lines[txs[i].ID]
	}
	return txs, nil
}

// linesOf batch-loads the lines of several transactions.
func (c *conn) linesOf(ctx context.Context, txIDs []string) (map[inventory.TransactionID][]inventory.TxLine, error) {
	var rows []txLineRow
	err := c.selectIn(ctx, &rows, `
		SELECT `+txLineColumns+` FROM tx_lines
		WHERE transaction_id IN (?)
		ORDER BY transaction_id, line_no`, txIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction lines: %w", err)
	}
	out := make(map[inventory.TransactionID][]inventory.TxLine, len(txIDs))
	for _, r := range rows {
		l := r.toDomain()
		out[l.TransactionID] = append(out[l.TransactionID], l)
	}
	return out, nil
}

type movementRow struct {
	TransactionID string          `db:"transaction_id"`
	Date          string          `db:"date"`
	Type          string          `db:"type"`
	PartnerID     string          `db:"partner_id"`
	Remarks       string          `db:"remarks"`
	CreatedAt     string          `db:"created_at"`
	LineNo        int             `db:"line_no"`
	ItemID        string          `db:"item_id"`
	Quantity      decimal.Decimal `db:"quantity"`
}

// Movements returns the lines of the given items in replay order.
func (c *conn) Movements(ctx context.Context, f inventory.MovementFilter) ([]inventory.Movement, error) {
	if len(f.ItemIDs) == 0 {
		return []inventory.Movement{}, nil
	}

	query := `
		SELECT t.id AS transaction_id, t.date, t.type, COALESCE(t.partner_id, '') AS partner_id,
		       t.remarks, t.created_at, l.line_no, l.item_id, l.quantity
		FROM tx_lines l
		JOIN transactions t ON t.id = l.transaction_id
		WHERE l.item_id IN (?)`
	args := []any{strs(f.ItemIDs)}
	if !f.From.IsZero() {
		query += ` AND t.date >= ?`
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		query += ` AND t.date <= ?`
		args = append(args, f.To.String())
	}
	query += ` ORDER BY t.date, t.created_at, t.id, l.line_no`

	var rows []movementRow
	if err := c.selectIn(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load movements: %w", err)
	}

	moves := make([]inventory.Movement, len(rows))
	for i, r := range rows {
		date, err := parseDate(r.Date)
		if err != nil {
			return nil, corrupt("transactions", r.TransactionID, err)
		}
		createdAt, err := parseTime(r.CreatedAt)
		if err != nil {
			return nil, corrupt("transactions", r.TransactionID, err)
		}
		moves[i] = inventory.Movement{
			TransactionID: inventory.TransactionID(r.TransactionID),
			Date:          date,
			Type:          inventory.TransactionType(r.Type),
			PartnerID:     inventory.PartnerID(r.PartnerID),
			Remarks:       r.Remarks,
			CreatedAt:     createdAt,
			LineNo:        r.LineNo,
			ItemID:        inventory.ItemID(r.ItemID),
			Quantity:      r.Quantity,
		}
	}
	return moves, nil
}
