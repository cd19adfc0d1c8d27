// Package ledger is the transaction engine of the pharmacy backend. Every
// financial mutation (sale, customer payment, purchase order) flows through
// here before reaching the store, which commits it atomically.
package ledger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dawakhana/backend/internal/cache"
	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/fefo"
	"dawakhana/backend/internal/store"
	"dawakhana/backend/internal/units"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const alertCacheKey = "stock-alerts"

type Service struct {
	repo             store.Repository
	alerts           cache.AlertCache
	expiryWindowDays int
	alertCacheTTL    time.Duration
}

func New(repo store.Repository, alerts cache.AlertCache, expiryWindowDays int, alertCacheTTL time.Duration) *Service {
	if alerts == nil {
		alerts = cache.NoopAlertCache{}
	}
	if expiryWindowDays < 1 {
		expiryWindowDays = 30
	}

	return &Service{
		repo:             repo,
		alerts:           alerts,
		expiryWindowDays: expiryWindowDays,
		alertCacheTTL:    alertCacheTTL,
	}
}

func (s *Service) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	return s.repo.ListMedicines(ctx)
}

func (s *Service) GetMedicine(ctx context.Context, id string) (domain.Medicine, error) {
	medicine, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *medicine, nil
}

func (s *Service) CreateMedicine(ctx context.Context, req domain.MedicineCreateRequest) (domain.Medicine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Medicine{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Medicine{}, store.ErrValidation
	}
	if req.BasePurchasePrice.IsNegative() || req.BaseSellingPrice.IsNegative() || req.TaxRateGst.IsNegative() {
		return domain.Medicine{}, store.ErrValidation
	}
	if req.TabletsPerStrip < 0 || req.StripsPerBox < 0 || req.ReorderPoint < 0 {
		return domain.Medicine{}, store.ErrValidation
	}

	medicine := domain.Medicine{
		Name:              req.Name,
		Composition:       strings.TrimSpace(req.Composition),
		Category:          strings.TrimSpace(req.Category),
		Company:           strings.TrimSpace(req.Company),
		BasePurchasePrice: req.BasePurchasePrice,
		BaseSellingPrice:  req.BaseSellingPrice,
		TabletsPerStrip:   req.TabletsPerStrip,
		StripsPerBox:      req.StripsPerBox,
		ReorderPoint:      req.ReorderPoint,
		TaxRateGst:        req.TaxRateGst,
	}

	created, err := s.repo.CreateMedicine(ctx, medicine)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *created, nil
}

func (s *Service) UpdateMedicine(ctx context.Context, id string, req domain.MedicineUpdateRequest) (domain.Medicine, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Medicine{}, fmt.Errorf("admin role required")
	}
	if id == "" {
		return domain.Medicine{}, store.ErrValidation
	}

	existing, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return domain.Medicine{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.Name = name
	}
	if req.Composition != nil {
		updated.Composition = strings.TrimSpace(*req.Composition)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Company != nil {
		updated.Company = strings.TrimSpace(*req.Company)
	}
	if req.BasePurchasePrice != nil {
		if req.BasePurchasePrice.IsNegative() {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.BasePurchasePrice = *req.BasePurchasePrice
	}
	if req.BaseSellingPrice != nil {
		if req.BaseSellingPrice.IsNegative() {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.BaseSellingPrice = *req.BaseSellingPrice
	}
	if req.TabletsPerStrip != nil {
		if *req.TabletsPerStrip < 0 {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.TabletsPerStrip = *req.TabletsPerStrip
	}
	if req.StripsPerBox != nil {
		if *req.StripsPerBox < 0 {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.StripsPerBox = *req.StripsPerBox
	}
	if req.ReorderPoint != nil {
		if *req.ReorderPoint < 0 {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.ReorderPoint = *req.ReorderPoint
	}
	if req.TaxRateGst != nil {
		if req.TaxRateGst.IsNegative() {
			return domain.Medicine{}, store.ErrValidation
		}
		updated.TaxRateGst = *req.TaxRateGst
	}

	saved, err := s.repo.UpdateMedicine(ctx, updated)
	if err != nil {
		return domain.Medicine{}, err
	}
	return *saved, nil
}

// MedicineStock is a medicine's sellable stock total with the equivalent
// box/strip/tablet display breakdown.
type MedicineStock struct {
	MedicineID string          `json:"medicine_id"`
	TotalUnits int64           `json:"total_units"`
	Breakdown  units.Breakdown `json:"breakdown"`
}

func (s *Service) GetMedicineStock(ctx context.Context, id string) (MedicineStock, error) {
	medicine, err := s.repo.GetMedicineByID(ctx, id)
	if err != nil {
		return MedicineStock{}, err
	}

	totals, err := s.repo.GetStockTotals(ctx)
	if err != nil {
		return MedicineStock{}, err
	}

	total := totals[id]
	return MedicineStock{
		MedicineID: id,
		TotalUnits: total,
		Breakdown:  units.FromSmallestUnits(*medicine, total),
	}, nil
}

func (s *Service) ReceiveStock(ctx context.Context, req domain.ReceiveStockRequest) (domain.Batch, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Batch{}, fmt.Errorf("admin role required")
	}

	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	if req.MedicineID == "" || req.BatchNumber == "" || req.QuantityInBoxes < 1 {
		return domain.Batch{}, store.ErrValidation
	}
	if !req.PurchasePricePerUnit.IsPositive() {
		return domain.Batch{}, store.ErrValidation
	}

	expiry, err := time.Parse("2006-01-02", req.ExpiryDate)
	if err != nil {
		return domain.Batch{}, store.ErrValidation
	}
	expiry = fefo.DateOnly(expiry)
	if expiry.Before(fefo.DateOnly(time.Now().UTC())) {
		return domain.Batch{}, store.ErrValidation
	}

	medicine, err := s.repo.GetMedicineByID(ctx, req.MedicineID)
	if err != nil {
		return domain.Batch{}, err
	}

	quantity, ok := units.ToSmallestUnits(*medicine, req.QuantityInBoxes, domain.UnitBox)
	if !ok {
		return domain.Batch{}, store.ErrValidation
	}

	batch := domain.Batch{
		MedicineID:              req.MedicineID,
		BatchNumber:             req.BatchNumber,
		ExpiryDate:              expiry,
		QuantityInSmallestUnits: quantity,
		PurchasePricePerUnit:    req.PurchasePricePerUnit,
		SupplierID:              req.SupplierID,
		ReceivedAt:              time.Now().UTC(),
	}

	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return domain.Batch{}, err
	}
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, medicineID string, includeExpired bool) ([]domain.Batch, error) {
	if medicineID == "" {
		return nil, store.ErrValidation
	}
	return s.repo.ListBatchesByMedicine(ctx, medicineID, includeExpired)
}

func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	if id == "" {
		return store.ErrValidation
	}
	return s.repo.DeleteBatch(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Customer{}, fmt.Errorf("authenticated user required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrValidation
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomerLedger(ctx context.Context, customerID string, limit int) (domain.CustomerLedgerResponse, error) {
	if customerID == "" {
		return domain.CustomerLedgerResponse{}, store.ErrValidation
	}
	if limit < 1 {
		limit = 50
	}

	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		return domain.CustomerLedgerResponse{}, err
	}
	transactions, err := s.repo.ListCustomerTransactions(ctx, customerID, limit)
	if err != nil {
		return domain.CustomerLedgerResponse{}, err
	}

	return domain.CustomerLedgerResponse{
		Customer:     *customer,
		Transactions: transactions,
	}, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrValidation
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:          req.Name,
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplierByID(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authenticated user required")
	}

	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentUPI:
	case domain.PaymentCredit:
		if req.CustomerID == "" {
			return domain.Sale{}, store.ErrValidation
		}
	default:
		return domain.Sale{}, store.ErrValidation
	}
	if len(req.Cart) == 0 {
		return domain.Sale{}, store.ErrValidation
	}

	ids := make([]string, 0, len(req.Cart))
	seen := make(map[string]struct{}, len(req.Cart))
	for _, line := range req.Cart {
		if line.MedicineID == "" {
			return domain.Sale{}, store.ErrValidation
		}
		if _, ok := seen[line.MedicineID]; ok {
			continue
		}
		seen[line.MedicineID] = struct{}{}
		ids = append(ids, line.MedicineID)
	}

	medicines, err := s.repo.GetMedicinesByIDs(ctx, ids)
	if err != nil {
		return domain.Sale{}, err
	}

	// Cart lines for the same medicine are merged so the FEFO plan sees one
	// demand figure per medicine.
	quantityByMedicine := make(map[string]int64, len(ids))
	for _, line := range req.Cart {
		medicine, exists := medicines[line.MedicineID]
		if !exists {
			return domain.Sale{}, store.ErrNotFound
		}
		qty, ok := units.ToSmallestUnits(medicine, line.Quantity, line.Unit)
		if !ok {
			return domain.Sale{}, store.ErrValidation
		}
		quantityByMedicine[line.MedicineID] += qty
	}

	lines := make([]domain.SaleLine, 0, len(ids))
	for _, id := range ids {
		medicine := medicines[id]
		lines = append(lines, domain.SaleLine{
			MedicineID:       id,
			QuantityUnits:    quantityByMedicine[id],
			UnitSellingPrice: medicine.BaseSellingPrice,
			GstRate:          medicine.TaxRateGst,
		})
	}

	now := time.Now().UTC()
	sale := domain.Sale{
		SaleDate:        now,
		CustomerID:      req.CustomerID,
		PaymentMethod:   req.PaymentMethod,
		InvoiceNumber:   fmt.Sprintf("INV-%d", now.UnixMilli()),
		CreatedByUserID: actor.Username,
		CreatedAt:       now,
	}

	created, err := s.repo.RecordSale(ctx, sale, lines)
	if err != nil {
		return domain.Sale{}, err
	}
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSaleByID(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if !from.Before(to) {
		return nil, store.ErrValidation
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) RecordPayment(ctx context.Context, customerID string, req domain.RecordPaymentRequest) (domain.CustomerTransaction, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CustomerTransaction{}, fmt.Errorf("authenticated user required")
	}

	if customerID == "" || !req.Amount.IsPositive() {
		return domain.CustomerTransaction{}, store.ErrValidation
	}
	if req.PaymentMethod != domain.PaymentCash && req.PaymentMethod != domain.PaymentUPI {
		return domain.CustomerTransaction{}, store.ErrValidation
	}

	now := time.Now().UTC()
	payment := domain.CustomerTransaction{
		CustomerID:      customerID,
		TransactionDate: now,
		Type:            domain.CustomerTxPayment,
		Amount:          req.Amount,
		PaymentMethod:   req.PaymentMethod,
		Description:     strings.TrimSpace(req.Notes),
		CreatedByUserID: actor.Username,
		CreatedAt:       now,
	}

	saved, err := s.repo.RecordPayment(ctx, payment)
	if err != nil {
		return domain.CustomerTransaction{}, err
	}
	return *saved, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, req domain.PurchaseOrderCreateRequest) (domain.PurchaseOrder, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.PurchaseOrder{}, fmt.Errorf("admin role required")
	}

	if req.SupplierID == "" || len(req.Items) == 0 {
		return domain.PurchaseOrder{}, store.ErrValidation
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.MedicineID == "" || line.RequestedQuantity < 1 || !line.UnitPriceAtOrder.IsPositive() {
			return domain.PurchaseOrder{}, store.ErrValidation
		}
		items = append(items, domain.PurchaseOrderItem{
			MedicineID:        line.MedicineID,
			RequestedQuantity: line.RequestedQuantity,
			UnitPriceAtOrder:  line.UnitPriceAtOrder,
		})
	}

	now := time.Now().UTC()
	po := domain.PurchaseOrder{
		SupplierID:      req.SupplierID,
		OrderDate:       now,
		Status:          domain.PurchaseOrderStatusPlaced,
		CreatedByUserID: actor.Username,
		CreatedAt:       now,
		Items:           items,
	}

	created, err := s.repo.CreatePurchaseOrder(ctx, po)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *created, nil
}

func (s *Service) GetPurchaseOrder(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	po, err := s.repo.GetPurchaseOrderByID(ctx, id)
	if err != nil {
		return domain.PurchaseOrder{}, err
	}
	return *po, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error) {
	return s.repo.ListPurchaseOrders(ctx, status, limit)
}

func (s *Service) StockAlerts(ctx context.Context) (domain.StockAlerts, error) {
	if cached, found, err := s.alerts.Get(ctx, alertCacheKey); err != nil {
		log.Printf("[ledger] WARN: alert cache read failed: %v", err)
	} else if found {
		return *cached, nil
	}

	now := time.Now().UTC()
	today := fefo.DateOnly(now)
	cutoff := today.AddDate(0, 0, s.expiryWindowDays)

	batches, err := s.repo.ListBatchesExpiringBefore(ctx, cutoff, true, 500)
	if err != nil {
		return domain.StockAlerts{}, err
	}

	medicines, err := s.repo.ListMedicines(ctx)
	if err != nil {
		return domain.StockAlerts{}, err
	}
	nameByID := make(map[string]string, len(medicines))
	for _, m := range medicines {
		nameByID[m.ID] = m.Name
	}

	expiring := make([]domain.ExpiringBatchAlert, 0, len(batches))
	for _, batch := range batches {
		expiring = append(expiring, domain.ExpiringBatchAlert{
			BatchID:                 batch.ID,
			MedicineID:              batch.MedicineID,
			MedicineName:            nameByID[batch.MedicineID],
			BatchNumber:             batch.BatchNumber,
			ExpiryDate:              batch.ExpiryDate.Format("2006-01-02"),
			QuantityInSmallestUnits: batch.QuantityInSmallestUnits,
			Expired:                 batch.ExpiryDate.Before(today),
		})
	}

	totals, err := s.repo.GetStockTotals(ctx)
	if err != nil {
		return domain.StockAlerts{}, err
	}
	lowStock := make([]domain.LowStockAlert, 0, 16)
	for _, m := range medicines {
		if m.ReorderPoint < 1 {
			continue
		}
		if totals[m.ID] > m.ReorderPoint {
			continue
		}
		lowStock = append(lowStock, domain.LowStockAlert{
			MedicineID:   m.ID,
			Name:         m.Name,
			CurrentStock: totals[m.ID],
			ReorderPoint: m.ReorderPoint,
		})
	}

	alerts := domain.StockAlerts{
		GeneratedAt: now.Format(time.RFC3339),
		WindowDays:  s.expiryWindowDays,
		Expiring:    expiring,
		LowStock:    lowStock,
	}

	if s.alertCacheTTL > 0 {
		if err := s.alerts.Set(ctx, alertCacheKey, &alerts, s.alertCacheTTL); err != nil {
			log.Printf("[ledger] WARN: alert cache write failed: %v", err)
		}
	}

	return alerts, nil
}

func (s *Service) DashboardSummary(ctx context.Context, date time.Time) (domain.DashboardSummary, error) {
	if date.IsZero() {
		date = time.Now().UTC()
	}
	from := fefo.DateOnly(date)
	to := from.AddDate(0, 0, 1)

	summary, err := s.repo.GetDashboardSummary(ctx, from, to)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	summary.Date = from.Format("2006-01-02")
	return summary, nil
}
