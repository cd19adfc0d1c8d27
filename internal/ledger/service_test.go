package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dawakhana/backend/internal/cache"
	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/store"
	"dawakhana/backend/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func pharmacistCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "priya", Role: "pharmacist"})
}

func newTestService(repo *memory.Store) *Service {
	return New(repo, cache.NoopAlertCache{}, 30, 0)
}

// seedParacetamol creates the reference medicine: strip of 10 tablets,
// 10 strips per box, 2.00 per tablet, 5% GST.
func seedParacetamol(t *testing.T, repo *memory.Store) string {
	t.Helper()
	_, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		ID:                "med-pcm",
		Name:              "Paracetamol 500mg",
		Category:          "Analgesic",
		BasePurchasePrice: dec("1.20"),
		BaseSellingPrice:  dec("2.00"),
		TabletsPerStrip:   10,
		StripsPerBox:      10,
		ReorderPoint:      50,
		TaxRateGst:        dec("5"),
	})
	if err != nil {
		t.Fatalf("seed medicine: %v", err)
	}
	return "med-pcm"
}

func seedBatch(t *testing.T, repo *memory.Store, id string, medicineID string, quantity int64, cost string, expiresIn time.Duration) {
	t.Helper()
	_, err := repo.CreateBatch(context.Background(), domain.Batch{
		ID:                      id,
		MedicineID:              medicineID,
		BatchNumber:             "BN-" + id,
		ExpiryDate:              time.Now().UTC().Add(expiresIn),
		QuantityInSmallestUnits: quantity,
		PurchasePricePerUnit:    dec(cost),
	})
	if err != nil {
		t.Fatalf("seed batch %s: %v", id, err)
	}
}

func batchQuantity(t *testing.T, repo *memory.Store, medicineID string, batchID string) int64 {
	t.Helper()
	batches, err := repo.ListBatchesByMedicine(context.Background(), medicineID, true)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	for _, b := range batches {
		if b.ID == batchID {
			return b.QuantityInSmallestUnits
		}
	}
	t.Fatalf("batch %s not found", batchID)
	return 0
}

func TestRecordSaleComputesGstTotals(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	svc := newTestService(repo)

	sale, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if !sale.TotalAmountBeforeTax.Equal(dec("40.00")) {
		t.Fatalf("before tax %s, want 40.00", sale.TotalAmountBeforeTax)
	}
	if !sale.TotalTaxAmount.Equal(dec("2.00")) {
		t.Fatalf("tax %s, want 2.00", sale.TotalTaxAmount)
	}
	if !sale.TotalAmountDue.Equal(dec("42.00")) {
		t.Fatalf("due %s, want 42.00", sale.TotalAmountDue)
	}
	if !sale.AmountPaid.Equal(dec("42.00")) || !sale.BalanceDue.IsZero() {
		t.Fatalf("cash sale paid=%s balance=%s, want fully settled", sale.AmountPaid, sale.BalanceDue)
	}
	if sale.InvoiceNumber == "" || sale.CreatedByUserID != "priya" {
		t.Fatalf("sale metadata incomplete: %+v", sale)
	}

	if got := batchQuantity(t, repo, medID, "batch-a"); got != 580 {
		t.Fatalf("batch quantity %d, want 580", got)
	}
}

func TestRecordSaleDrawsSoonestExpiryAcrossBatches(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-soon", medID, 15, "1.20", 30*24*time.Hour)
	seedBatch(t, repo, "batch-late", medID, 500, "1.10", 365*24*time.Hour)
	svc := newTestService(repo)

	sale, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentUPI,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}

	if len(sale.Items) != 2 {
		t.Fatalf("got %d sale items, want 2 (one per batch drawn)", len(sale.Items))
	}
	if sale.Items[0].BatchID != "batch-soon" || sale.Items[0].QuantitySold != 15 {
		t.Fatalf("first item %+v, want 15 from batch-soon", sale.Items[0])
	}
	if !sale.Items[0].PurchasePriceAtSale.Equal(dec("1.20")) {
		t.Fatalf("first item cost basis %s, want 1.20", sale.Items[0].PurchasePriceAtSale)
	}
	if sale.Items[1].BatchID != "batch-late" || sale.Items[1].QuantitySold != 5 {
		t.Fatalf("second item %+v, want 5 from batch-late", sale.Items[1])
	}
	if !sale.Items[1].PurchasePriceAtSale.Equal(dec("1.10")) {
		t.Fatalf("second item cost basis %s, want 1.10", sale.Items[1].PurchasePriceAtSale)
	}

	if got := batchQuantity(t, repo, medID, "batch-soon"); got != 0 {
		t.Fatalf("batch-soon quantity %d, want 0", got)
	}
	if got := batchQuantity(t, repo, medID, "batch-late"); got != 495 {
		t.Fatalf("batch-late quantity %d, want 495", got)
	}
}

func TestRecordSaleMergesCartLinesPerMedicine(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	svc := newTestService(repo)

	sale, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 1, Unit: domain.UnitStrip},
			{MedicineID: medID, Quantity: 5, Unit: domain.UnitTablet},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.TotalAmountBeforeTax.Equal(dec("30.00")) {
		t.Fatalf("before tax %s, want 30.00 for 15 tablets", sale.TotalAmountBeforeTax)
	}
	if got := batchQuantity(t, repo, medID, "batch-a"); got != 585 {
		t.Fatalf("batch quantity %d, want 585", got)
	}
}

func TestCreditSaleRaisesDebtAndAppendsLedger(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)

	sale, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		CustomerID:    customer.ID,
		PaymentMethod: domain.PaymentCredit,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !sale.AmountPaid.IsZero() || !sale.BalanceDue.Equal(dec("42.00")) {
		t.Fatalf("credit sale paid=%s balance=%s, want unpaid 42.00", sale.AmountPaid, sale.BalanceDue)
	}

	ledger, err := svc.GetCustomerLedger(pharmacistCtx(), customer.ID, 10)
	if err != nil {
		t.Fatalf("customer ledger: %v", err)
	}
	if !ledger.Customer.DebtAmount.Equal(dec("42.00")) {
		t.Fatalf("debt %s, want 42.00", ledger.Customer.DebtAmount)
	}
	if len(ledger.Transactions) != 1 {
		t.Fatalf("got %d ledger entries, want 1", len(ledger.Transactions))
	}
	entry := ledger.Transactions[0]
	if entry.Type != domain.CustomerTxCredit || !entry.Amount.Equal(dec("42.00")) || entry.RelatedSaleID != sale.ID {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

func TestCreditSaleRequiresCustomer(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	svc := newTestService(repo)

	_, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCredit,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 1, Unit: domain.UnitStrip},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestRecordSaleInsufficientStockLeavesStateUntouched(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 15, "1.20", 90*24*time.Hour)
	svc := newTestService(repo)

	_, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}
	if got := batchQuantity(t, repo, medID, "batch-a"); got != 15 {
		t.Fatalf("batch quantity %d after failed sale, want 15", got)
	}
	sales, err := svc.ListSales(pharmacistCtx(), time.Now().UTC().Add(-time.Hour), time.Time{}, 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("got %d sales after failed sale, want 0", len(sales))
	}
}

func TestRecordSaleIgnoresExpiredStock(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-ok", medID, 10, "1.20", 90*24*time.Hour)
	// Bypass service validation to plant an already expired batch.
	if _, err := repo.CreateBatch(context.Background(), domain.Batch{
		ID:                      "batch-expired",
		MedicineID:              medID,
		BatchNumber:             "BN-old",
		ExpiryDate:              time.Now().UTC().Add(-48 * time.Hour),
		QuantityInSmallestUnits: 1000,
		PurchasePricePerUnit:    dec("1.00"),
	}); err != nil {
		t.Fatalf("seed expired batch: %v", err)
	}
	svc := newTestService(repo)

	_, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock when only expired stock covers demand", err)
	}
}

func TestRecordSaleCommitFailurePersistsNothing(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)

	repo.FailNextCommit()
	_, err = svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		CustomerID:    customer.ID,
		PaymentMethod: domain.PaymentCredit,
		Cart: []domain.CartLine{
			{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	if !errors.Is(err, store.ErrCommit) {
		t.Fatalf("got %v, want ErrCommit", err)
	}

	if got := batchQuantity(t, repo, medID, "batch-a"); got != 600 {
		t.Fatalf("batch quantity %d after failed commit, want 600", got)
	}
	ledger, err := svc.GetCustomerLedger(pharmacistCtx(), customer.ID, 10)
	if err != nil {
		t.Fatalf("customer ledger: %v", err)
	}
	if !ledger.Customer.DebtAmount.IsZero() || len(ledger.Transactions) != 0 {
		t.Fatalf("debt=%s entries=%d after failed commit, want untouched", ledger.Customer.DebtAmount, len(ledger.Transactions))
	}
}

func seedDebt(t *testing.T, svc *Service, repo *memory.Store, customerID string, amount string) {
	t.Helper()
	_, err := repo.CreateMedicine(context.Background(), domain.Medicine{
		ID:               "med-tonic",
		Name:             "Iron Tonic 200ml",
		BaseSellingPrice: dec(amount),
		TabletsPerStrip:  1,
		StripsPerBox:     1,
		TaxRateGst:       decimal.Zero,
	})
	if err != nil {
		t.Fatalf("seed tonic: %v", err)
	}
	seedBatch(t, repo, "batch-tonic", "med-tonic", 50, "60.00", 120*24*time.Hour)

	_, err = svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		CustomerID:    customerID,
		PaymentMethod: domain.PaymentCredit,
		Cart: []domain.CartLine{
			{MedicineID: "med-tonic", Quantity: 1, Unit: domain.UnitTablet},
		},
	})
	if err != nil {
		t.Fatalf("seed debt sale: %v", err)
	}
}

func TestRecordPaymentReducesDebt(t *testing.T) {
	repo := memory.New()
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)
	seedDebt(t, svc, repo, customer.ID, "100.00")

	payment, err := svc.RecordPayment(pharmacistCtx(), customer.ID, domain.RecordPaymentRequest{
		Amount:        dec("40.00"),
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.Type != domain.CustomerTxPayment || !payment.Amount.Equal(dec("40.00")) {
		t.Fatalf("unexpected payment entry %+v", payment)
	}

	ledger, err := svc.GetCustomerLedger(pharmacistCtx(), customer.ID, 10)
	if err != nil {
		t.Fatalf("customer ledger: %v", err)
	}
	if !ledger.Customer.DebtAmount.Equal(dec("60.00")) {
		t.Fatalf("debt %s after payment, want 60.00", ledger.Customer.DebtAmount)
	}
	if len(ledger.Transactions) != 2 {
		t.Fatalf("got %d ledger entries, want credit + payment", len(ledger.Transactions))
	}
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	repo := memory.New()
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)
	seedDebt(t, svc, repo, customer.ID, "100.00")

	_, err = svc.RecordPayment(pharmacistCtx(), customer.ID, domain.RecordPaymentRequest{
		Amount:        dec("150.00"),
		PaymentMethod: domain.PaymentUPI,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation for overpayment", err)
	}

	ledger, err := svc.GetCustomerLedger(pharmacistCtx(), customer.ID, 10)
	if err != nil {
		t.Fatalf("customer ledger: %v", err)
	}
	if !ledger.Customer.DebtAmount.Equal(dec("100.00")) {
		t.Fatalf("debt %s after rejected overpayment, want 100.00", ledger.Customer.DebtAmount)
	}
	if len(ledger.Transactions) != 1 {
		t.Fatalf("got %d ledger entries, want only the original credit", len(ledger.Transactions))
	}
}

func TestRecordPaymentRejectsCreditMethod(t *testing.T) {
	repo := memory.New()
	if _, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)

	_, err := svc.RecordPayment(pharmacistCtx(), "cust-1", domain.RecordPaymentRequest{
		Amount:        dec("10.00"),
		PaymentMethod: domain.PaymentCredit,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestReceiveStockConvertsBoxesToSmallestUnits(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	svc := newTestService(repo)

	expiry := time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02")
	batch, err := svc.ReceiveStock(adminCtx(), domain.ReceiveStockRequest{
		MedicineID:           medID,
		BatchNumber:          "PCM-2708",
		ExpiryDate:           expiry,
		QuantityInBoxes:      2,
		PurchasePricePerUnit: dec("1.15"),
	})
	if err != nil {
		t.Fatalf("receive stock: %v", err)
	}
	if batch.QuantityInSmallestUnits != 200 {
		t.Fatalf("batch quantity %d, want 200 (2 boxes of 10x10)", batch.QuantityInSmallestUnits)
	}

	stock, err := svc.GetMedicineStock(pharmacistCtx(), medID)
	if err != nil {
		t.Fatalf("medicine stock: %v", err)
	}
	if stock.TotalUnits != 200 || stock.Breakdown.Boxes != 2 || stock.Breakdown.Strips != 0 || stock.Breakdown.Tablets != 0 {
		t.Fatalf("unexpected stock %+v", stock)
	}
}

func TestReceiveStockRejectsExpiredDate(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	svc := newTestService(repo)

	_, err := svc.ReceiveStock(adminCtx(), domain.ReceiveStockRequest{
		MedicineID:           medID,
		BatchNumber:          "PCM-OLD",
		ExpiryDate:           "2020-01-01",
		QuantityInBoxes:      1,
		PurchasePricePerUnit: dec("1.15"),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestAdminOnlyOperationsRejectPharmacist(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	svc := newTestService(repo)

	if _, err := svc.CreateMedicine(pharmacistCtx(), domain.MedicineCreateRequest{Name: "Ibuprofen 400mg"}); err == nil {
		t.Fatalf("expected medicine create to fail for pharmacist")
	}
	if _, err := svc.ReceiveStock(pharmacistCtx(), domain.ReceiveStockRequest{
		MedicineID:           medID,
		BatchNumber:          "X",
		ExpiryDate:           "2030-01-01",
		QuantityInBoxes:      1,
		PurchasePricePerUnit: dec("1.00"),
	}); err == nil {
		t.Fatalf("expected stock receive to fail for pharmacist")
	}
	if _, err := svc.CreateSupplier(pharmacistCtx(), domain.SupplierCreateRequest{Name: "Acme"}); err == nil {
		t.Fatalf("expected supplier create to fail for pharmacist")
	}
}

func TestPurchaseOrderRaisesSupplierPayable(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	supplier, err := repo.CreateSupplier(context.Background(), domain.Supplier{ID: "sup-1", Name: "Mehta Pharma"})
	if err != nil {
		t.Fatalf("seed supplier: %v", err)
	}
	svc := newTestService(repo)

	po, err := svc.CreatePurchaseOrder(adminCtx(), domain.PurchaseOrderCreateRequest{
		SupplierID: supplier.ID,
		Items: []domain.PurchaseOrderLineRequest{
			{MedicineID: medID, RequestedQuantity: 500, UnitPriceAtOrder: dec("1.10")},
			{MedicineID: medID, RequestedQuantity: 100, UnitPriceAtOrder: dec("1.20")},
		},
	})
	if err != nil {
		t.Fatalf("create purchase order: %v", err)
	}
	if po.Status != domain.PurchaseOrderStatusPlaced {
		t.Fatalf("status %s, want placed", po.Status)
	}
	if !po.TotalAmount.Equal(dec("670.00")) {
		t.Fatalf("total %s, want 670.00", po.TotalAmount)
	}

	updated, err := svc.GetSupplier(adminCtx(), supplier.ID)
	if err != nil {
		t.Fatalf("get supplier: %v", err)
	}
	if !updated.AccountPayableBalance.Equal(dec("670.00")) {
		t.Fatalf("payable %s, want 670.00", updated.AccountPayableBalance)
	}
}

func TestStockAlertsFlagExpiryAndReorder(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-soon", medID, 30, "1.20", 10*24*time.Hour)
	if _, err := repo.CreateBatch(context.Background(), domain.Batch{
		ID:                      "batch-expired",
		MedicineID:              medID,
		BatchNumber:             "BN-old",
		ExpiryDate:              time.Now().UTC().Add(-24 * time.Hour),
		QuantityInSmallestUnits: 5,
		PurchasePricePerUnit:    dec("1.00"),
	}); err != nil {
		t.Fatalf("seed expired batch: %v", err)
	}
	svc := newTestService(repo)

	alerts, err := svc.StockAlerts(pharmacistCtx())
	if err != nil {
		t.Fatalf("stock alerts: %v", err)
	}
	if alerts.WindowDays != 30 {
		t.Fatalf("window %d, want 30", alerts.WindowDays)
	}
	if len(alerts.Expiring) != 2 {
		t.Fatalf("got %d expiring alerts, want 2", len(alerts.Expiring))
	}
	if !alerts.Expiring[0].Expired || alerts.Expiring[0].BatchID != "batch-expired" {
		t.Fatalf("first alert %+v, want the expired batch flagged first", alerts.Expiring[0])
	}
	if alerts.Expiring[1].Expired {
		t.Fatalf("soon-to-expire batch wrongly flagged expired: %+v", alerts.Expiring[1])
	}

	// 30 sellable units is at/below the reorder point of 50.
	if len(alerts.LowStock) != 1 || alerts.LowStock[0].MedicineID != medID {
		t.Fatalf("low stock alerts %+v, want paracetamol flagged", alerts.LowStock)
	}
	if alerts.LowStock[0].CurrentStock != 30 {
		t.Fatalf("current stock %d, want 30 (expired stock excluded)", alerts.LowStock[0].CurrentStock)
	}
}

func TestDashboardSummaryAggregatesDay(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 600, "1.20", 90*24*time.Hour)
	customer, err := repo.CreateCustomer(context.Background(), domain.Customer{ID: "cust-1", Name: "Anita Sharma"})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	svc := newTestService(repo)

	if _, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart:          []domain.CartLine{{MedicineID: medID, Quantity: 2, Unit: domain.UnitStrip}},
	}); err != nil {
		t.Fatalf("cash sale: %v", err)
	}
	if _, err := svc.RecordSale(pharmacistCtx(), domain.RecordSaleRequest{
		CustomerID:    customer.ID,
		PaymentMethod: domain.PaymentCredit,
		Cart:          []domain.CartLine{{MedicineID: medID, Quantity: 1, Unit: domain.UnitStrip}},
	}); err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	if _, err := svc.RecordPayment(pharmacistCtx(), customer.ID, domain.RecordPaymentRequest{
		Amount:        dec("10.00"),
		PaymentMethod: domain.PaymentCash,
	}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	summary, err := svc.DashboardSummary(pharmacistCtx(), time.Now().UTC())
	if err != nil {
		t.Fatalf("dashboard summary: %v", err)
	}
	if summary.SalesCount != 2 {
		t.Fatalf("sales count %d, want 2", summary.SalesCount)
	}
	if !summary.RevenueBeforeTax.Equal(dec("60.00")) {
		t.Fatalf("revenue before tax %s, want 60.00", summary.RevenueBeforeTax)
	}
	if !summary.TaxCollected.Equal(dec("3.00")) {
		t.Fatalf("tax %s, want 3.00", summary.TaxCollected)
	}
	if !summary.TotalRevenue.Equal(dec("63.00")) {
		t.Fatalf("total revenue %s, want 63.00", summary.TotalRevenue)
	}
	if !summary.CreditExtended.Equal(dec("21.00")) {
		t.Fatalf("credit extended %s, want 21.00", summary.CreditExtended)
	}
	if !summary.PaymentsReceived.Equal(dec("10.00")) {
		t.Fatalf("payments received %s, want 10.00", summary.PaymentsReceived)
	}
}

func TestSaleRequiresAuthenticatedActor(t *testing.T) {
	repo := memory.New()
	medID := seedParacetamol(t, repo)
	seedBatch(t, repo, "batch-a", medID, 100, "1.20", 90*24*time.Hour)
	svc := newTestService(repo)

	_, err := svc.RecordSale(context.Background(), domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart:          []domain.CartLine{{MedicineID: medID, Quantity: 1, Unit: domain.UnitTablet}},
	})
	if err == nil {
		t.Fatalf("expected sale without actor to fail")
	}
}
