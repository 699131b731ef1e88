package database

// Schema queries
const (
	SetSearchPathSQL = `SELECT set_config('search_path', $1, true)`

	CreateMigrationsTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id SERIAL PRIMARY KEY,
			migration_name VARCHAR(255) NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`

	RecordMigrationSQL = `INSERT INTO schema_migrations (migration_name) VALUES ($1)`
)

// Order queries
const (
	orderColumns = `id, outlet_id, order_number, table_id, customer_id, order_type, subtotal, tax, total,
		status, payment_status, invoice_number, notes, merged_into, created_at, updated_at, paid_at`

	InsertOrderSQL = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	InsertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, position, menu_item_id, name, quantity, unit_price,
			total_price, special_instructions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	GetOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	LockOrderSQL = `SELECT id FROM orders WHERE id = $1 FOR UPDATE`

	ListOrderItemsSQL = `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price, total_price, special_instructions, status
		FROM order_items WHERE order_id = $1
		ORDER BY position ASC`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`

	SetOrderPaymentStatusSQL = `
		UPDATE orders SET payment_status = $2, invoice_number = COALESCE($3, invoice_number),
			paid_at = CASE WHEN $2 = 'PAID' THEN $4 ELSE paid_at END, updated_at = $4
		WHERE id = $1 AND payment_status = 'PENDING'`

	ListPayableOrdersByTablesSQL = `
		SELECT ` + orderColumns + ` FROM orders
		WHERE table_id = ANY($1) AND payment_status = 'PENDING' AND status NOT IN ('CANCELLED', 'MERGED')
		ORDER BY created_at ASC, order_number ASC
		FOR UPDATE`

	MarkOrderMergedSQL = `
		UPDATE orders SET status = 'MERGED', payment_status = 'CANCELLED', merged_into = $2, updated_at = $3
		WHERE id = $1 AND payment_status = 'PENDING' AND status NOT IN ('CANCELLED', 'MERGED')`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, $4, $5)`

	GetOrderStatusHistorySQL = `
		SELECT order_id, status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`
)

// Bill queries
const (
	billColumns = `id, order_id, outlet_id, order_number, parent_bill_id, split_number, split_type, subtotal,
		service_charge_rate, service_charge, total, payment_status, is_split, invoice_number, created_at, paid_at`

	InsertBillSQL = `
		INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	InsertBillItemSQL = `
		INSERT INTO bill_items (bill_id, position, order_item_id, menu_item_id, name, quantity, unit_price, total_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	InsertBillDiscountSQL = `
		INSERT INTO bill_discounts (bill_id, position, name, kind, value, amount)
		VALUES ($1, $2, $3, $4, $5, $6)`

	InsertBillTaxSQL = `
		INSERT INTO bill_taxes (bill_id, position, name, rate, amount)
		VALUES ($1, $2, $3, $4, $5)`

	GetBillSQL = `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	ListChildBillsSQL = `SELECT ` + billColumns + ` FROM bills WHERE parent_bill_id = $1 ORDER BY split_number ASC`

	ListBillItemsSQL = `
		SELECT order_item_id, menu_item_id, name, quantity, unit_price, total_price
		FROM bill_items WHERE bill_id = $1 ORDER BY position ASC`

	ListBillDiscountsSQL = `
		SELECT name, kind, value, amount FROM bill_discounts WHERE bill_id = $1 ORDER BY position ASC`

	ListBillTaxesSQL = `
		SELECT name, rate, amount FROM bill_taxes WHERE bill_id = $1 ORDER BY position ASC`

	LockBillSQL = `SELECT id FROM bills WHERE id = $1 FOR UPDATE`

	MarkBillSplitSQL = `
		UPDATE bills SET is_split = TRUE
		WHERE id = $1 AND payment_status = 'PENDING' AND is_split = FALSE`

	MarkBillPaidSQL = `
		UPDATE bills SET payment_status = 'PAID', invoice_number = $2, paid_at = $3
		WHERE id = $1 AND payment_status = 'PENDING'`
)

// Payment queries
const (
	paymentColumns = `id, order_id, bill_id, method, amount, reference, card_last4, approval_code, status, processed_at`

	InsertPaymentSQL = `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ListPaymentsByOrderSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY processed_at ASC, id ASC`

	ListPaymentsByBillSQL = `SELECT ` + paymentColumns + ` FROM payments WHERE bill_id = $1 ORDER BY processed_at ASC, id ASC`

	InsertInvoiceSQL = `
		INSERT INTO invoices (id, invoice_number, outlet_id, order_id, bill_id, amount, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// Kitchen queries
const (
	kotColumns = `id, kot_number, outlet_id, order_id, order_number, table_id, order_type, priority, status, notes,
		estimated_completion_time, assigned_to, created_at, updated_at, started_at, completed_at`

	InsertKOTSQL = `
		INSERT INTO kots (` + kotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	InsertKOTItemSQL = `
		INSERT INTO kot_items (id, kot_id, position, order_item_id, menu_item_id, name, quantity,
			special_instructions, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	GetKOTSQL = `SELECT ` + kotColumns + ` FROM kots WHERE id = $1`

	ListKOTItemsSQL = `
		SELECT id, kot_id, order_item_id, menu_item_id, name, quantity, special_instructions, status
		FROM kot_items WHERE kot_id = $1 ORDER BY position ASC`

	UpdateKOTSQL = `
		UPDATE kots SET status = $3, assigned_to = $4, estimated_completion_time = $5,
			started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1 AND status = $2`

	UpdateKOTItemStatusSQL = `
		UPDATE kot_items SET status = $4
		WHERE kot_id = $1 AND id = $2 AND status = $3`

	KOTItemExistsSQL = `SELECT EXISTS (SELECT 1 FROM kot_items WHERE kot_id = $1 AND id = $2)`

	// ListKOTsSQL is completed by buildKOTQuery with the filter and ordering.
	ListKOTsSQL = `SELECT ` + kotColumns + ` FROM kots`
)

// Table queries
const (
	tableColumns = `id, outlet_id, table_number, capacity, section, status, current_order_id, party_size,
		occupied_at, created_at, updated_at`

	InsertTableSQL = `
		INSERT INTO dining_tables (` + tableColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	GetTableSQL = `SELECT ` + tableColumns + ` FROM dining_tables WHERE id = $1`

	LockTableSQL = `SELECT id FROM dining_tables WHERE id = $1 FOR UPDATE`

	ListTablesSQL = `
		SELECT ` + tableColumns + ` FROM dining_tables
		WHERE ($1 = '' OR outlet_id = $1) AND ($2::text IS NULL OR status = $2)
		ORDER BY table_number ASC`

	UpdateTableSQL = `
		UPDATE dining_tables SET table_number = $3, capacity = $4, section = $5, status = $6,
			current_order_id = $7, party_size = $8, occupied_at = $9, updated_at = $10
		WHERE id = $1 AND status = $2`

	DeleteTableSQL = `DELETE FROM dining_tables WHERE id = $1`

	tableNumberConstraint = "dining_tables_outlet_number_key"
)

// Identifier and catalog queries
const (
	NextSequenceSQL = `
		INSERT INTO identifier_sequences (outlet_id, kind, day, value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (outlet_id, kind, day) DO UPDATE SET value = identifier_sequences.value + 1
		RETURNING value`

	GetMenuItemSQL = `
		SELECT id, name, price, available FROM menu_items
		WHERE id = $1 AND outlet_id = $2`
)
