package sqlstore

// schema is applied statement by statement on Open. The same DDL runs on
// SQLite and PostgreSQL: dates are "YYYY-MM-DD" text, timestamps are
// fixed-width UTC text and decimals are text, so every ORDER BY and range
// filter compares strings the same way on both.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		spec TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		process TEXT NOT NULL,
		source TEXT NOT NULL,
		cost TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS partners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		registration_number TEXT UNIQUE,
		contact TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	// At most one header per item and month.
	`CREATE TABLE IF NOT EXISTS bom_headers (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		version TEXT NOT NULL,
		is_fixed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		UNIQUE (item_id, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bom_headers_version ON bom_headers(version)`,

	`CREATE TABLE IF NOT EXISTS bom_lines (
		id TEXT PRIMARY KEY,
		bom_header_id TEXT NOT NULL REFERENCES bom_headers(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		material_id TEXT NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		process TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bom_lines_header ON bom_lines(bom_header_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bom_lines_material ON bom_lines(material_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		partner_id TEXT REFERENCES partners(id),
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	// Replay order of the ledger.
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(date, created_at, id)`,

	`CREATE TABLE IF NOT EXISTS tx_lines (
		id TEXT PRIMARY KEY,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		item_id TEXT NOT NULL REFERENCES items(id),
		quantity TEXT NOT NULL,
		price TEXT,
		amount TEXT,
		UNIQUE (transaction_id, line_no)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tx_lines_item ON tx_lines(item_id)`,

	`CREATE TABLE IF NOT EXISTS monthly_prices (
		id TEXT PRIMARY KEY,
		month TEXT NOT NULL,
		item_id TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		price TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE (month, item_id, type)
	)`,

	`CREATE TABLE IF NOT EXISTS monthly_price_status (
		month TEXT PRIMARY KEY,
		is_fixed BOOLEAN NOT NULL DEFAULT FALSE,
		fixed_at TEXT
	)`,

	// One snapshot per month; concurrent creators race on this constraint.
	`CREATE TABLE IF NOT EXISTS inventory_snapshots (
		id TEXT PRIMARY KEY,
		month TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		adjustment_tx_id TEXT REFERENCES transactions(id),
		closed_at TEXT,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS inventory_snapshot_lines (
		id TEXT PRIMARY KEY,
		snapshot_id TEXT NOT NULL REFERENCES inventory_snapshots(id) ON DELETE CASCADE,
		item_id TEXT NOT NULL REFERENCES items(id),
		calculated_qty TEXT NOT NULL,
		actual_qty TEXT NOT NULL,
		difference_qty TEXT NOT NULL,
		difference_reason TEXT NOT NULL DEFAULT '',
		UNIQUE (snapshot_id, item_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshot_lines_item ON inventory_snapshot_lines(item_id)`,
}
