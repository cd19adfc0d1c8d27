package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/fefo"
	"dawakhana/backend/internal/store"
	"dawakhana/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	medicine.Name = strings.TrimSpace(medicine.Name)
	if medicine.Name == "" || medicine.BaseSellingPrice.IsNegative() || medicine.BasePurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.TabletsPerStrip < 0 || medicine.StripsPerBox < 0 || medicine.ReorderPoint < 0 || medicine.TaxRateGst.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	now := time.Now().UTC()
	medicine.CreatedAt = now
	medicine.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medicines (
			id, name, composition, category, company, base_purchase_price,
			base_selling_price, tablets_per_strip, strips_per_box, reorder_point,
			tax_rate_gst, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, medicine.ID, medicine.Name, medicine.Composition, medicine.Category, medicine.Company,
		medicine.BasePurchasePrice, medicine.BaseSellingPrice, medicine.TabletsPerStrip,
		medicine.StripsPerBox, medicine.ReorderPoint, medicine.TaxRateGst, medicine.CreatedAt, medicine.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := medicine
	return &created, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	var medicine domain.Medicine
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, composition, category, company, base_purchase_price,
			base_selling_price, tablets_per_strip, strips_per_box, reorder_point,
			tax_rate_gst, created_at, updated_at
		FROM medicines
		WHERE id = $1
	`, id).Scan(&medicine.ID, &medicine.Name, &medicine.Composition, &medicine.Category,
		&medicine.Company, &medicine.BasePurchasePrice, &medicine.BaseSellingPrice,
		&medicine.TabletsPerStrip, &medicine.StripsPerBox, &medicine.ReorderPoint,
		&medicine.TaxRateGst, &medicine.CreatedAt, &medicine.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &medicine, nil
}

func (s *Store) GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error) {
	result := make(map[string]domain.Medicine, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, composition, category, company, base_purchase_price,
			base_selling_price, tablets_per_strip, strips_per_box, reorder_point,
			tax_rate_gst, created_at, updated_at
		FROM medicines
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Composition, &m.Category, &m.Company,
			&m.BasePurchasePrice, &m.BaseSellingPrice, &m.TabletsPerStrip, &m.StripsPerBox,
			&m.ReorderPoint, &m.TaxRateGst, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		result[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	medicine.Name = strings.TrimSpace(medicine.Name)
	if medicine.Name == "" || medicine.BaseSellingPrice.IsNegative() || medicine.BasePurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.TabletsPerStrip < 0 || medicine.StripsPerBox < 0 || medicine.ReorderPoint < 0 || medicine.TaxRateGst.IsNegative() {
		return nil, store.ErrValidation
	}
	medicine.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE medicines
		SET name = $2, composition = $3, category = $4, company = $5,
			base_purchase_price = $6, base_selling_price = $7, tablets_per_strip = $8,
			strips_per_box = $9, reorder_point = $10, tax_rate_gst = $11, updated_at = $12
		WHERE id = $1
	`, medicine.ID, medicine.Name, medicine.Composition, medicine.Category, medicine.Company,
		medicine.BasePurchasePrice, medicine.BaseSellingPrice, medicine.TabletsPerStrip,
		medicine.StripsPerBox, medicine.ReorderPoint, medicine.TaxRateGst, medicine.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := medicine
	return &updated, nil
}

func (s *Store) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, composition, category, company, base_purchase_price,
			base_selling_price, tablets_per_strip, strips_per_box, reorder_point,
			tax_rate_gst, created_at, updated_at
		FROM medicines
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	medicines := make([]domain.Medicine, 0, 128)
	for rows.Next() {
		var m domain.Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.Composition, &m.Category, &m.Company,
			&m.BasePurchasePrice, &m.BaseSellingPrice, &m.TabletsPerStrip, &m.StripsPerBox,
			&m.ReorderPoint, &m.TaxRateGst, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return medicines, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	batch.BatchNumber = strings.TrimSpace(batch.BatchNumber)
	if batch.MedicineID == "" || batch.BatchNumber == "" {
		return nil, store.ErrValidation
	}
	if batch.QuantityInSmallestUnits < 1 || !batch.PurchasePricePerUnit.IsPositive() || batch.ExpiryDate.IsZero() {
		return nil, store.ErrValidation
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}
	batch.ExpiryDate = fefo.DateOnly(batch.ExpiryDate)

	if _, err := s.GetMedicineByID(ctx, batch.MedicineID); err != nil {
		return nil, err
	}
	if batch.SupplierID != "" {
		if _, err := s.GetSupplierByID(ctx, batch.SupplierID); err != nil {
			return nil, err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (
			id, medicine_id, batch_number, expiry_date, quantity_in_smallest_units,
			purchase_price_per_unit, supplier_id, received_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, batch.ID, batch.MedicineID, batch.BatchNumber, batch.ExpiryDate,
		batch.QuantityInSmallestUnits, batch.PurchasePricePerUnit, nullIfEmpty(batch.SupplierID), batch.ReceivedAt)
	if err != nil {
		return nil, err
	}

	created := batch
	return &created, nil
}

func (s *Store) ListBatchesByMedicine(ctx context.Context, medicineID string, includeExpired bool) ([]domain.Batch, error) {
	if _, err := s.GetMedicineByID(ctx, medicineID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, medicine_id, batch_number, expiry_date, quantity_in_smallest_units,
			purchase_price_per_unit, COALESCE(supplier_id, ''), received_at
		FROM batches
		WHERE medicine_id = $1
	`
	if !includeExpired {
		query += ` AND expiry_date >= CURRENT_DATE`
	}
	query += ` ORDER BY expiry_date ASC, received_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, medicineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows)
}

func (s *Store) ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time, includeExpired bool, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 200
	}
	cutoff = fefo.DateOnly(cutoff)

	query := `
		SELECT id, medicine_id, batch_number, expiry_date, quantity_in_smallest_units,
			purchase_price_per_unit, COALESCE(supplier_id, ''), received_at
		FROM batches
		WHERE quantity_in_smallest_units > 0 AND expiry_date <= $1
	`
	if !includeExpired {
		query += ` AND expiry_date >= CURRENT_DATE`
	}
	query += ` ORDER BY expiry_date ASC, received_at ASC, id ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBatches(rows)
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetStockTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, COALESCE(SUM(b.quantity_in_smallest_units), 0)
		FROM medicines m
		LEFT JOIN batches b
			ON b.medicine_id = m.id AND b.expiry_date >= CURRENT_DATE
		GROUP BY m.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int64, 128)
	for rows.Next() {
		var id string
		var total int64
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		totals[id] = total
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now
	customer.DebtAmount = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, debt_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, customer.ID, customer.Name, customer.Phone, customer.Email, customer.DebtAmount, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, debt_amount, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.Email,
		&customer.DebtAmount, &customer.CreatedAt, &customer.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, debt_amount, created_at, updated_at
		FROM customers
		ORDER BY name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.DebtAmount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) ListCustomerTransactions(ctx context.Context, customerID string, limit int) ([]domain.CustomerTransaction, error) {
	if _, err := s.GetCustomerByID(ctx, customerID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, transaction_date, type, amount, payment_method,
			COALESCE(description, ''), COALESCE(related_sale_id, ''), created_by_user_id, created_at
		FROM customer_transactions
		WHERE customer_id = $1
		ORDER BY transaction_date DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.CustomerTransaction, 0, limit)
	for rows.Next() {
		var tx domain.CustomerTransaction
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.TransactionDate, &tx.Type, &tx.Amount,
			&tx.PaymentMethod, &tx.Description, &tx.RelatedSaleID, &tx.CreatedByUserID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.TransactionDate = tx.TransactionDate.UTC()
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrValidation
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.AccountPayableBalance = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_person, phone, email, account_payable_balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, supplier.ContactPerson, supplier.Phone, supplier.Email,
		supplier.AccountPayableBalance, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}

	created := supplier
	return &created, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_person, phone, email, account_payable_balance, created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&supplier.ID, &supplier.Name, &supplier.ContactPerson, &supplier.Phone,
		&supplier.Email, &supplier.AccountPayableBalance, &supplier.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &supplier, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_person, phone, email, account_payable_balance, created_at
		FROM suppliers
		ORDER BY created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sp domain.Supplier
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.ContactPerson, &sp.Phone, &sp.Email,
			&sp.AccountPayableBalance, &sp.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) RecordSale(ctx context.Context, sale domain.Sale, lines []domain.SaleLine) (*domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.ErrValidation
	}
	switch sale.PaymentMethod {
	case domain.PaymentCash, domain.PaymentUPI:
	case domain.PaymentCredit:
		if sale.CustomerID == "" {
			return nil, store.ErrValidation
		}
	default:
		return nil, store.ErrValidation
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.SaleDate.IsZero() {
		sale.SaleDate = time.Now().UTC()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = sale.SaleDate
	}
	today := fefo.DateOnly(sale.SaleDate)

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	subtotal := decimal.Zero
	tax := decimal.Zero
	items := make([]domain.SaleItem, 0, len(lines))
	for _, line := range lines {
		if line.QuantityUnits < 1 || line.UnitSellingPrice.IsNegative() || line.GstRate.IsNegative() {
			return nil, store.ErrValidation
		}

		batchRows, err := pgTx.QueryContext(ctx, `
			SELECT id, medicine_id, batch_number, expiry_date, quantity_in_smallest_units,
				purchase_price_per_unit, COALESCE(supplier_id, ''), received_at
			FROM batches
			WHERE medicine_id = $1 AND quantity_in_smallest_units > 0
			ORDER BY expiry_date ASC, received_at ASC, id ASC
			FOR UPDATE
		`, line.MedicineID)
		if err != nil {
			return nil, err
		}
		batches, err := scanBatches(batchRows)
		batchRows.Close()
		if err != nil {
			return nil, err
		}

		draws, err := fefo.Plan(batches, line.QuantityUnits, today)
		if err != nil {
			return nil, err
		}

		for _, draw := range draws {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE batches
				SET quantity_in_smallest_units = quantity_in_smallest_units - $1
				WHERE id = $2 AND quantity_in_smallest_units >= $1
			`, draw.Quantity, draw.BatchID)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				return nil, store.ErrInsufficientStock
			}

			itemBase := line.UnitSellingPrice.Mul(decimal.NewFromInt(draw.Quantity))
			itemTax := itemBase.Mul(line.GstRate).Div(decimal.NewFromInt(100))
			items = append(items, domain.SaleItem{
				ID:                  xid.New("sitem"),
				SaleID:              sale.ID,
				MedicineID:          line.MedicineID,
				BatchID:             draw.BatchID,
				QuantitySold:        draw.Quantity,
				UnitSellingPrice:    line.UnitSellingPrice,
				PurchasePriceAtSale: draw.CostBasis,
				GstRateApplied:      line.GstRate,
				ItemTotalBeforeTax:  itemBase,
				ItemTaxAmount:       itemTax,
				ItemTotalWithTax:    itemBase.Add(itemTax),
			})
			subtotal = subtotal.Add(itemBase)
			tax = tax.Add(itemTax)
		}
	}

	sale.TotalAmountBeforeTax = subtotal
	sale.TotalTaxAmount = tax
	sale.TotalAmountDue = subtotal.Add(tax)
	if sale.PaymentMethod == domain.PaymentCredit {
		sale.AmountPaid = decimal.Zero
		sale.BalanceDue = sale.TotalAmountDue
	} else {
		sale.AmountPaid = sale.TotalAmountDue
		sale.BalanceDue = decimal.Zero
	}
	sale.Items = items

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, sale_date, customer_id, total_amount_before_tax, total_tax_amount,
			total_amount_due, amount_paid, balance_due, payment_method, invoice_number,
			created_by_user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.SaleDate, nullIfEmpty(sale.CustomerID), sale.TotalAmountBeforeTax,
		sale.TotalTaxAmount, sale.TotalAmountDue, sale.AmountPaid, sale.BalanceDue,
		sale.PaymentMethod, sale.InvoiceNumber, sale.CreatedByUserID, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, medicine_id, batch_id, quantity_sold, unit_selling_price,
				purchase_price_at_sale, gst_rate_applied, item_total_before_tax,
				item_tax_amount, item_total_with_tax
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, item.ID, item.SaleID, item.MedicineID, item.BatchID, item.QuantitySold,
			item.UnitSellingPrice, item.PurchasePriceAtSale, item.GstRateApplied,
			item.ItemTotalBeforeTax, item.ItemTaxAmount, item.ItemTotalWithTax)
		if err != nil {
			return nil, err
		}
	}

	if sale.PaymentMethod == domain.PaymentCredit {
		res, err := pgTx.ExecContext(ctx, `
			UPDATE customers
			SET debt_amount = debt_amount + $1, updated_at = $2
			WHERE id = $3
		`, sale.TotalAmountDue, sale.SaleDate, sale.CustomerID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO customer_transactions (
				id, customer_id, transaction_date, type, amount, payment_method,
				description, related_sale_id, created_by_user_id, created_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, xid.New("ctx"), sale.CustomerID, sale.SaleDate, domain.CustomerTxCredit,
			sale.TotalAmountDue, domain.PaymentCredit, "Credit sale "+sale.InvoiceNumber,
			sale.ID, sale.CreatedByUserID, sale.SaleDate)
		if err != nil {
			return nil, err
		}
	} else if sale.CustomerID != "" {
		// Cash/UPI sales may still reference a customer; verify it exists so
		// the sale row never points at a missing ledger.
		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)`, sale.CustomerID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCommit, err)
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sale_date, COALESCE(customer_id, ''), total_amount_before_tax,
			total_tax_amount, total_amount_due, amount_paid, balance_due,
			payment_method, invoice_number, created_by_user_id, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.SaleDate, &sale.CustomerID, &sale.TotalAmountBeforeTax,
		&sale.TotalTaxAmount, &sale.TotalAmountDue, &sale.AmountPaid, &sale.BalanceDue,
		&sale.PaymentMethod, &sale.InvoiceNumber, &sale.CreatedByUserID, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.SaleDate = sale.SaleDate.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, medicine_id, batch_id, quantity_sold, unit_selling_price,
			purchase_price_at_sale, gst_rate_applied, item_total_before_tax,
			item_tax_amount, item_total_with_tax
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, 8)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.MedicineID, &item.BatchID,
			&item.QuantitySold, &item.UnitSellingPrice, &item.PurchasePriceAtSale,
			&item.GstRateApplied, &item.ItemTotalBeforeTax, &item.ItemTaxAmount,
			&item.ItemTotalWithTax); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_date, COALESCE(customer_id, ''), total_amount_before_tax,
			total_tax_amount, total_amount_due, amount_paid, balance_due,
			payment_method, invoice_number, created_by_user_id, created_at
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
		ORDER BY sale_date DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.SaleDate, &sale.CustomerID, &sale.TotalAmountBeforeTax,
			&sale.TotalTaxAmount, &sale.TotalAmountDue, &sale.AmountPaid, &sale.BalanceDue,
			&sale.PaymentMethod, &sale.InvoiceNumber, &sale.CreatedByUserID, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.SaleDate = sale.SaleDate.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) RecordPayment(ctx context.Context, payment domain.CustomerTransaction) (*domain.CustomerTransaction, error) {
	if !payment.Amount.IsPositive() {
		return nil, store.ErrValidation
	}
	if payment.ID == "" {
		payment.ID = xid.New("ctx")
	}
	if payment.TransactionDate.IsZero() {
		payment.TransactionDate = time.Now().UTC()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = payment.TransactionDate
	}
	payment.Type = domain.CustomerTxPayment

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var debt decimal.Decimal
	err = pgTx.QueryRowContext(ctx, `
		SELECT debt_amount
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`, payment.CustomerID).Scan(&debt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if payment.Amount.GreaterThan(debt) {
		return nil, store.ErrValidation
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE customers
		SET debt_amount = debt_amount - $1, updated_at = $2
		WHERE id = $3
	`, payment.Amount, payment.TransactionDate, payment.CustomerID)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO customer_transactions (
			id, customer_id, transaction_date, type, amount, payment_method,
			description, related_sale_id, created_by_user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, payment.ID, payment.CustomerID, payment.TransactionDate, payment.Type, payment.Amount,
		payment.PaymentMethod, nullIfEmpty(payment.Description), nullIfEmpty(payment.RelatedSaleID),
		payment.CreatedByUserID, payment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCommit, err)
	}

	saved := payment
	return &saved, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	if po.ID == "" {
		po.ID = xid.New("po")
	}
	if po.OrderDate.IsZero() {
		po.OrderDate = time.Now().UTC()
	}
	if po.CreatedAt.IsZero() {
		po.CreatedAt = po.OrderDate
	}
	if po.Status == "" {
		po.Status = domain.PurchaseOrderStatusPlaced
	}

	total := decimal.Zero
	items := make([]domain.PurchaseOrderItem, 0, len(po.Items))
	for _, item := range po.Items {
		if item.RequestedQuantity < 1 || !item.UnitPriceAtOrder.IsPositive() {
			return nil, store.ErrValidation
		}
		if item.ID == "" {
			item.ID = xid.New("poitem")
		}
		item.PurchaseOrderID = po.ID
		item.TotalPrice = item.UnitPriceAtOrder.Mul(decimal.NewFromInt(item.RequestedQuantity))
		total = total.Add(item.TotalPrice)
		items = append(items, item)
	}
	po.Items = items
	po.TotalAmount = total

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var supplierID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id FROM suppliers WHERE id = $1 FOR UPDATE
	`, po.SupplierID).Scan(&supplierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO purchase_orders (id, supplier_id, order_date, status, total_amount, created_by_user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, po.ID, po.SupplierID, po.OrderDate, po.Status, po.TotalAmount, po.CreatedByUserID, po.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range po.Items {
		var exists bool
		if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM medicines WHERE id = $1)`, item.MedicineID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO purchase_order_items (id, purchase_order_id, medicine_id, requested_quantity, unit_price_at_order, total_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, item.ID, item.PurchaseOrderID, item.MedicineID, item.RequestedQuantity, item.UnitPriceAtOrder, item.TotalPrice)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE suppliers
		SET account_payable_balance = account_payable_balance + $1
		WHERE id = $2
	`, po.TotalAmount, po.SupplierID)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrCommit, err)
	}

	saved := po
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(ctx context.Context, id string) (*domain.PurchaseOrder, error) {
	var po domain.PurchaseOrder
	err := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, order_date, status, total_amount, created_by_user_id, created_at
		FROM purchase_orders
		WHERE id = $1
	`, id).Scan(&po.ID, &po.SupplierID, &po.OrderDate, &po.Status, &po.TotalAmount,
		&po.CreatedByUserID, &po.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, purchase_order_id, medicine_id, requested_quantity, unit_price_at_order, total_price
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id ASC
	`, po.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PurchaseOrderItem, 0, 8)
	for rows.Next() {
		var item domain.PurchaseOrderItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.MedicineID,
			&item.RequestedQuantity, &item.UnitPriceAtOrder, &item.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	po.Items = items

	return &po, nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 100
	}
	status = strings.ToLower(strings.TrimSpace(status))

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, order_date, status, total_amount, created_by_user_id, created_at
		FROM purchase_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0, limit)
	for rows.Next() {
		var po domain.PurchaseOrder
		if err := rows.Scan(&po.ID, &po.SupplierID, &po.OrderDate, &po.Status,
			&po.TotalAmount, &po.CreatedByUserID, &po.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{
		RevenueBeforeTax: decimal.Zero,
		TaxCollected:     decimal.Zero,
		TotalRevenue:     decimal.Zero,
		CreditExtended:   decimal.Zero,
		PaymentsReceived: decimal.Zero,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_amount_before_tax), 0),
			COALESCE(SUM(total_tax_amount), 0),
			COALESCE(SUM(total_amount_due), 0),
			COALESCE(SUM(balance_due) FILTER (WHERE payment_method = $3), 0)
		FROM sales
		WHERE sale_date >= $1 AND sale_date < $2
	`, from, to, domain.PaymentCredit).Scan(&summary.SalesCount, &summary.RevenueBeforeTax,
		&summary.TaxCollected, &summary.TotalRevenue, &summary.CreditExtended)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM customer_transactions
		WHERE type = $3 AND transaction_date >= $1 AND transaction_date < $2
	`, from, to, domain.CustomerTxPayment).Scan(&summary.PaymentsReceived)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "pharmacist"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM app_users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password_hash = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanBatches(rows *sql.Rows) ([]domain.Batch, error) {
	batches := make([]domain.Batch, 0, 16)
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.MedicineID, &b.BatchNumber, &b.ExpiryDate,
			&b.QuantityInSmallestUnits, &b.PurchasePricePerUnit, &b.SupplierID, &b.ReceivedAt); err != nil {
			return nil, err
		}
		b.ExpiryDate = fefo.DateOnly(b.ExpiryDate)
		b.ReceivedAt = b.ReceivedAt.UTC()
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
