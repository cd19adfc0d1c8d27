package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/fefo"
	"dawakhana/backend/internal/store"
	"dawakhana/backend/internal/xid"
)

type Store struct {
	mu                   sync.RWMutex
	medicinesByID        map[string]domain.Medicine
	batchesByMedicine    map[string][]domain.Batch
	customersByID        map[string]domain.Customer
	customerTransactions []domain.CustomerTransaction
	suppliersByID        map[string]domain.Supplier
	salesByID            map[string]*domain.Sale
	purchaseOrdersByID   map[string]domain.PurchaseOrder
	usersByUsername      map[string]domain.UserAccount
	failNextCommit       bool
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_PHARMACIST_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	pharmacistPwd := envOr("SEED_PHARMACIST_PASSWORD", "pharma123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_PHARMACIST_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_PHARMACIST_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"pharmacist", pharmacistPwd, "pharmacist"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	medicines := []domain.Medicine{
		{
			ID:                "med-paracetamol-500",
			Name:              "Paracetamol 500mg",
			Composition:       "Paracetamol 500mg",
			Category:          "Analgesic",
			Company:           "Cipla",
			BasePurchasePrice: decimal.RequireFromString("1.20"),
			BaseSellingPrice:  decimal.RequireFromString("2.00"),
			TabletsPerStrip:   10,
			StripsPerBox:      10,
			ReorderPoint:      200,
			TaxRateGst:        decimal.RequireFromString("5"),
		},
		{
			ID:                "med-amoxicillin-250",
			Name:              "Amoxicillin 250mg",
			Composition:       "Amoxicillin Trihydrate 250mg",
			Category:          "Antibiotic",
			Company:           "Sun Pharma",
			BasePurchasePrice: decimal.RequireFromString("3.40"),
			BaseSellingPrice:  decimal.RequireFromString("5.50"),
			TabletsPerStrip:   10,
			StripsPerBox:      5,
			ReorderPoint:      100,
			TaxRateGst:        decimal.RequireFromString("12"),
		},
		{
			ID:                "med-cetirizine-10",
			Name:              "Cetirizine 10mg",
			Composition:       "Cetirizine Hydrochloride 10mg",
			Category:          "Antihistamine",
			Company:           "Dr. Reddy's",
			BasePurchasePrice: decimal.RequireFromString("0.80"),
			BaseSellingPrice:  decimal.RequireFromString("1.50"),
			TabletsPerStrip:   10,
			StripsPerBox:      10,
			ReorderPoint:      150,
			TaxRateGst:        decimal.RequireFromString("5"),
		},
		{
			ID:                "med-ors-sachet",
			Name:              "ORS Sachet",
			Composition:       "Oral Rehydration Salts 21.8g",
			Category:          "Rehydration",
			Company:           "FDC",
			BasePurchasePrice: decimal.RequireFromString("14.00"),
			BaseSellingPrice:  decimal.RequireFromString("21.00"),
			TabletsPerStrip:   1,
			StripsPerBox:      20,
			ReorderPoint:      40,
			TaxRateGst:        decimal.RequireFromString("12"),
		},
	}

	medicineMap := make(map[string]domain.Medicine, len(medicines))
	for _, m := range medicines {
		m.CreatedAt = now
		m.UpdatedAt = now
		medicineMap[m.ID] = m
	}

	suppliers := map[string]domain.Supplier{
		"sup-mehta": {
			ID:                    "sup-mehta",
			Name:                  "Mehta Pharma Distributors",
			ContactPerson:         "R. Mehta",
			Phone:                 "+91-98200-11223",
			AccountPayableBalance: decimal.Zero,
			CreatedAt:             now,
		},
	}

	batches := map[string][]domain.Batch{
		"med-paracetamol-500": {
			{
				ID:                      "batch-pcm-1",
				MedicineID:              "med-paracetamol-500",
				BatchNumber:             "PCM-2603",
				ExpiryDate:              fefo.DateOnly(now.AddDate(0, 7, 0)),
				QuantityInSmallestUnits: 600,
				PurchasePricePerUnit:    decimal.RequireFromString("1.20"),
				SupplierID:              "sup-mehta",
				ReceivedAt:              now,
			},
			{
				ID:                      "batch-pcm-2",
				MedicineID:              "med-paracetamol-500",
				BatchNumber:             "PCM-2711",
				ExpiryDate:              fefo.DateOnly(now.AddDate(1, 3, 0)),
				QuantityInSmallestUnits: 1000,
				PurchasePricePerUnit:    decimal.RequireFromString("1.15"),
				SupplierID:              "sup-mehta",
				ReceivedAt:              now,
			},
		},
		"med-amoxicillin-250": {
			{
				ID:                      "batch-amx-1",
				MedicineID:              "med-amoxicillin-250",
				BatchNumber:             "AMX-2609",
				ExpiryDate:              fefo.DateOnly(now.AddDate(0, 10, 0)),
				QuantityInSmallestUnits: 250,
				PurchasePricePerUnit:    decimal.RequireFromString("3.40"),
				SupplierID:              "sup-mehta",
				ReceivedAt:              now,
			},
		},
		"med-cetirizine-10": {
			{
				ID:                      "batch-ctz-1",
				MedicineID:              "med-cetirizine-10",
				BatchNumber:             "CTZ-2605",
				ExpiryDate:              fefo.DateOnly(now.AddDate(0, 1, 0)),
				QuantityInSmallestUnits: 120,
				PurchasePricePerUnit:    decimal.RequireFromString("0.80"),
				SupplierID:              "sup-mehta",
				ReceivedAt:              now,
			},
		},
	}

	customers := map[string]domain.Customer{
		"cust-sharma": {
			ID:         "cust-sharma",
			Name:       "Anita Sharma",
			Phone:      "+91-98111-44556",
			DebtAmount: decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}

	return &Store{
		medicinesByID:        medicineMap,
		batchesByMedicine:    batches,
		customersByID:        customers,
		customerTransactions: make([]domain.CustomerTransaction, 0, 64),
		suppliersByID:        suppliers,
		salesByID:            make(map[string]*domain.Sale),
		purchaseOrdersByID:   make(map[string]domain.PurchaseOrder),
		usersByUsername:      seedUsers(),
	}
}

// New returns an empty store. Tests use it to build exact fixtures
// without the demo seed data.
func New() *Store {
	return &Store{
		medicinesByID:        map[string]domain.Medicine{},
		batchesByMedicine:    map[string][]domain.Batch{},
		customersByID:        map[string]domain.Customer{},
		customerTransactions: make([]domain.CustomerTransaction, 0, 64),
		suppliersByID:        map[string]domain.Supplier{},
		salesByID:            make(map[string]*domain.Sale),
		purchaseOrdersByID:   make(map[string]domain.PurchaseOrder),
		usersByUsername:      map[string]domain.UserAccount{},
	}
}

// FailNextCommit makes the next RecordSale or RecordPayment fail with
// store.ErrCommit after all validation passed but before any state is
// applied. Tests use it to prove nothing partial persists.
func (s *Store) FailNextCommit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextCommit = true
}

func (s *Store) CreateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	medicine.Name = strings.TrimSpace(medicine.Name)
	if medicine.Name == "" || medicine.BaseSellingPrice.IsNegative() || medicine.BasePurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.TabletsPerStrip < 0 || medicine.StripsPerBox < 0 || medicine.ReorderPoint < 0 {
		return nil, store.ErrValidation
	}
	if medicine.TaxRateGst.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.ID == "" {
		medicine.ID = xid.New("med")
	}
	if _, exists := s.medicinesByID[medicine.ID]; exists {
		return nil, store.ErrValidation
	}
	now := time.Now().UTC()
	if medicine.CreatedAt.IsZero() {
		medicine.CreatedAt = now
	}
	medicine.UpdatedAt = now

	s.medicinesByID[medicine.ID] = medicine
	created := medicine
	return &created, nil
}

func (s *Store) GetMedicineByID(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicine, exists := s.medicinesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyMedicine := medicine
	return &copyMedicine, nil
}

func (s *Store) GetMedicinesByIDs(_ context.Context, ids []string) (map[string]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Medicine, len(ids))
	for _, id := range ids {
		if m, ok := s.medicinesByID[id]; ok {
			result[id] = m
		}
	}
	return result, nil
}

func (s *Store) UpdateMedicine(_ context.Context, medicine domain.Medicine) (*domain.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	medicine.Name = strings.TrimSpace(medicine.Name)
	if medicine.Name == "" || medicine.BaseSellingPrice.IsNegative() || medicine.BasePurchasePrice.IsNegative() {
		return nil, store.ErrValidation
	}
	if medicine.TabletsPerStrip < 0 || medicine.StripsPerBox < 0 || medicine.ReorderPoint < 0 {
		return nil, store.ErrValidation
	}
	existing, exists := s.medicinesByID[medicine.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	medicine.CreatedAt = existing.CreatedAt
	medicine.UpdatedAt = time.Now().UTC()

	s.medicinesByID[medicine.ID] = medicine
	updated := medicine
	return &updated, nil
}

func (s *Store) ListMedicines(_ context.Context) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	medicines := make([]domain.Medicine, 0, len(s.medicinesByID))
	for _, m := range s.medicinesByID {
		medicines = append(medicines, m)
	}
	slices.SortFunc(medicines, func(a, b domain.Medicine) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return medicines, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch.BatchNumber = strings.TrimSpace(batch.BatchNumber)
	if batch.MedicineID == "" || batch.BatchNumber == "" {
		return nil, store.ErrValidation
	}
	if batch.QuantityInSmallestUnits < 1 || !batch.PurchasePricePerUnit.IsPositive() {
		return nil, store.ErrValidation
	}
	if batch.ExpiryDate.IsZero() {
		return nil, store.ErrValidation
	}
	if _, exists := s.medicinesByID[batch.MedicineID]; !exists {
		return nil, store.ErrNotFound
	}
	if batch.SupplierID != "" {
		if _, exists := s.suppliersByID[batch.SupplierID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	if batch.ID == "" {
		batch.ID = xid.New("batch")
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}
	batch.ExpiryDate = fefo.DateOnly(batch.ExpiryDate)

	s.batchesByMedicine[batch.MedicineID] = append(s.batchesByMedicine[batch.MedicineID], batch)
	created := batch
	return &created, nil
}

func (s *Store) ListBatchesByMedicine(_ context.Context, medicineID string, includeExpired bool) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.medicinesByID[medicineID]; !exists {
		return nil, store.ErrNotFound
	}
	today := fefo.DateOnly(time.Now().UTC())
	result := make([]domain.Batch, 0, len(s.batchesByMedicine[medicineID]))
	for _, batch := range s.batchesByMedicine[medicineID] {
		if !includeExpired && batch.ExpiryDate.Before(today) {
			continue
		}
		result = append(result, batch)
	}
	slices.SortFunc(result, compareBatchForFEFO)
	return result, nil
}

func (s *Store) ListBatchesExpiringBefore(_ context.Context, cutoff time.Time, includeExpired bool, limit int) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	today := fefo.DateOnly(time.Now().UTC())
	cutoff = fefo.DateOnly(cutoff)
	result := make([]domain.Batch, 0, limit)
	for _, batches := range s.batchesByMedicine {
		for _, batch := range batches {
			if batch.QuantityInSmallestUnits < 1 {
				continue
			}
			if batch.ExpiryDate.After(cutoff) {
				continue
			}
			if !includeExpired && batch.ExpiryDate.Before(today) {
				continue
			}
			result = append(result, batch)
		}
	}
	slices.SortFunc(result, compareBatchForFEFO)
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for medicineID, batches := range s.batchesByMedicine {
		for i, batch := range batches {
			if batch.ID != id {
				continue
			}
			s.batchesByMedicine[medicineID] = append(batches[:i], batches[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) GetStockTotals(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := fefo.DateOnly(time.Now().UTC())
	totals := make(map[string]int64, len(s.medicinesByID))
	for id := range s.medicinesByID {
		totals[id] = 0
	}
	for medicineID, batches := range s.batchesByMedicine {
		for _, batch := range batches {
			if batch.ExpiryDate.Before(today) {
				continue
			}
			totals[medicineID] += batch.QuantityInSmallestUnits
		}
	}
	return totals, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	customer.DebtAmount = decimal.Zero

	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return cmpString(a.ID, b.ID)
		}
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) ListCustomerTransactions(_ context.Context, customerID string, limit int) ([]domain.CustomerTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.customersByID[customerID]; !exists {
		return nil, store.ErrNotFound
	}
	result := make([]domain.CustomerTransaction, 0, 16)
	for _, tx := range s.customerTransactions {
		if tx.CustomerID != customerID {
			continue
		}
		result = append(result, tx)
	}
	slices.SortFunc(result, func(a, b domain.CustomerTransaction) int {
		if a.TransactionDate.Equal(b.TransactionDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.TransactionDate.After(b.TransactionDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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

	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.Name, b.Name)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return suppliers, nil
}

// saleStaging collects every mutation a sale will apply so that nothing
// touches store state until all lines have validated and planned.
type saleStaging struct {
	batchDeductions map[string]int64
	items           []domain.SaleItem
	subtotal        decimal.Decimal
	tax             decimal.Decimal
}

func (s *Store) RecordSale(_ context.Context, sale domain.Sale, lines []domain.SaleLine) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(lines) == 0 {
		return nil, store.ErrValidation
	}
	switch sale.PaymentMethod {
	case domain.PaymentCash, domain.PaymentUPI:
		if sale.CustomerID != "" {
			if _, exists := s.customersByID[sale.CustomerID]; !exists {
				return nil, store.ErrNotFound
			}
		}
	case domain.PaymentCredit:
		if sale.CustomerID == "" {
			return nil, store.ErrValidation
		}
		if _, exists := s.customersByID[sale.CustomerID]; !exists {
			return nil, store.ErrNotFound
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
	staging := saleStaging{
		batchDeductions: map[string]int64{},
		items:           make([]domain.SaleItem, 0, len(lines)),
		subtotal:        decimal.Zero,
		tax:             decimal.Zero,
	}

	for _, line := range lines {
		if line.QuantityUnits < 1 || line.UnitSellingPrice.IsNegative() || line.GstRate.IsNegative() {
			return nil, store.ErrValidation
		}
		if _, exists := s.medicinesByID[line.MedicineID]; !exists {
			return nil, store.ErrNotFound
		}
		draws, err := fefo.Plan(s.batchesByMedicine[line.MedicineID], line.QuantityUnits, today)
		if err != nil {
			return nil, err
		}
		for _, draw := range draws {
			itemBase := line.UnitSellingPrice.Mul(decimal.NewFromInt(draw.Quantity))
			itemTax := itemBase.Mul(line.GstRate).Div(decimal.NewFromInt(100))
			staging.items = append(staging.items, domain.SaleItem{
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
			staging.batchDeductions[draw.BatchID] += draw.Quantity
			staging.subtotal = staging.subtotal.Add(itemBase)
			staging.tax = staging.tax.Add(itemTax)
		}
	}

	sale.TotalAmountBeforeTax = staging.subtotal
	sale.TotalTaxAmount = staging.tax
	sale.TotalAmountDue = staging.subtotal.Add(staging.tax)
	if sale.PaymentMethod == domain.PaymentCredit {
		sale.AmountPaid = decimal.Zero
		sale.BalanceDue = sale.TotalAmountDue
	} else {
		sale.AmountPaid = sale.TotalAmountDue
		sale.BalanceDue = decimal.Zero
	}
	sale.Items = staging.items

	if s.failNextCommit {
		s.failNextCommit = false
		return nil, store.ErrCommit
	}

	// All checks passed; apply the staged mutations as one unit.
	for medicineID, batches := range s.batchesByMedicine {
		changed := false
		for i := range batches {
			if qty, ok := staging.batchDeductions[batches[i].ID]; ok {
				batches[i].QuantityInSmallestUnits -= qty
				changed = true
			}
		}
		if changed {
			s.batchesByMedicine[medicineID] = batches
		}
	}

	if sale.PaymentMethod == domain.PaymentCredit {
		customer := s.customersByID[sale.CustomerID]
		customer.DebtAmount = customer.DebtAmount.Add(sale.TotalAmountDue)
		customer.UpdatedAt = sale.SaleDate
		s.customersByID[sale.CustomerID] = customer

		s.customerTransactions = append(s.customerTransactions, domain.CustomerTransaction{
			ID:              xid.New("ctx"),
			CustomerID:      sale.CustomerID,
			TransactionDate: sale.SaleDate,
			Type:            domain.CustomerTxCredit,
			Amount:          sale.TotalAmountDue,
			PaymentMethod:   domain.PaymentCredit,
			Description:     "Credit sale " + sale.InvoiceNumber,
			RelatedSaleID:   sale.ID,
			CreatedByUserID: sale.CreatedByUserID,
			CreatedAt:       sale.SaleDate,
		})
	}

	saleCopy := cloneSale(&sale)
	s.salesByID[sale.ID] = saleCopy
	return cloneSale(saleCopy), nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 200
	}
	result := make([]domain.Sale, 0, limit)
	for _, sale := range s.salesByID {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleDate.Equal(b.SaleDate) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleDate.After(b.SaleDate) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RecordPayment(_ context.Context, payment domain.CustomerTransaction) (*domain.CustomerTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !payment.Amount.IsPositive() {
		return nil, store.ErrValidation
	}
	customer, exists := s.customersByID[payment.CustomerID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if payment.Amount.GreaterThan(customer.DebtAmount) {
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

	if s.failNextCommit {
		s.failNextCommit = false
		return nil, store.ErrCommit
	}

	customer.DebtAmount = customer.DebtAmount.Sub(payment.Amount)
	customer.UpdatedAt = payment.TransactionDate
	s.customersByID[payment.CustomerID] = customer
	s.customerTransactions = append(s.customerTransactions, payment)

	saved := payment
	return &saved, nil
}

func (s *Store) CreatePurchaseOrder(_ context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if po.SupplierID == "" || len(po.Items) == 0 {
		return nil, store.ErrValidation
	}
	supplier, exists := s.suppliersByID[po.SupplierID]
	if !exists {
		return nil, store.ErrNotFound
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
		if _, exists := s.medicinesByID[item.MedicineID]; !exists {
			return nil, store.ErrNotFound
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

	supplier.AccountPayableBalance = supplier.AccountPayableBalance.Add(total)
	s.suppliersByID[po.SupplierID] = supplier

	s.purchaseOrdersByID[po.ID] = clonePurchaseOrder(po)
	saved := clonePurchaseOrder(s.purchaseOrdersByID[po.ID])
	return &saved, nil
}

func (s *Store) GetPurchaseOrderByID(_ context.Context, id string) (*domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	po, exists := s.purchaseOrdersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyPO := clonePurchaseOrder(po)
	return &copyPO, nil
}

func (s *Store) ListPurchaseOrders(_ context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.PurchaseOrder, 0, len(s.purchaseOrdersByID))
	for _, po := range s.purchaseOrdersByID {
		if status != "" && po.Status != status {
			continue
		}
		result = append(result, clonePurchaseOrder(po))
	}
	slices.SortFunc(result, func(a, b domain.PurchaseOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetDashboardSummary(_ context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DashboardSummary{
		RevenueBeforeTax: decimal.Zero,
		TaxCollected:     decimal.Zero,
		TotalRevenue:     decimal.Zero,
		CreditExtended:   decimal.Zero,
		PaymentsReceived: decimal.Zero,
	}

	for _, sale := range s.salesByID {
		if sale.SaleDate.Before(from) || !sale.SaleDate.Before(to) {
			continue
		}
		summary.SalesCount++
		summary.RevenueBeforeTax = summary.RevenueBeforeTax.Add(sale.TotalAmountBeforeTax)
		summary.TaxCollected = summary.TaxCollected.Add(sale.TotalTaxAmount)
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.TotalAmountDue)
		if sale.PaymentMethod == domain.PaymentCredit {
			summary.CreditExtended = summary.CreditExtended.Add(sale.BalanceDue)
		}
	}

	for _, tx := range s.customerTransactions {
		if tx.Type != domain.CustomerTxPayment {
			continue
		}
		if tx.TransactionDate.Before(from) || !tx.TransactionDate.Before(to) {
			continue
		}
		summary.PaymentsReceived = summary.PaymentsReceived.Add(tx.Amount)
	}

	return summary, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "pharmacist"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func compareBatchForFEFO(a domain.Batch, b domain.Batch) int {
	if a.ExpiryDate.Before(b.ExpiryDate) {
		return -1
	}
	if a.ExpiryDate.After(b.ExpiryDate) {
		return 1
	}
	if a.ReceivedAt.Before(b.ReceivedAt) {
		return -1
	}
	if a.ReceivedAt.After(b.ReceivedAt) {
		return 1
	}
	return cmpString(a.ID, b.ID)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}

func clonePurchaseOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dup := src
	items := make([]domain.PurchaseOrderItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
