package store

import (
	"context"
	"errors"
	"time"

	"dawakhana/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCommit            = errors.New("commit failed")
)

type Repository interface {
	CreateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	GetMedicinesByIDs(ctx context.Context, ids []string) (map[string]domain.Medicine, error)
	UpdateMedicine(ctx context.Context, medicine domain.Medicine) (*domain.Medicine, error)
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)

	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	ListBatchesByMedicine(ctx context.Context, medicineID string, includeExpired bool) ([]domain.Batch, error)
	ListBatchesExpiringBefore(ctx context.Context, cutoff time.Time, includeExpired bool, limit int) ([]domain.Batch, error)
	DeleteBatch(ctx context.Context, id string) error
	GetStockTotals(ctx context.Context) (map[string]int64, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListCustomerTransactions(ctx context.Context, customerID string, limit int) ([]domain.CustomerTransaction, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	// RecordSale commits a sale as one atomic unit: FEFO batch consumption,
	// sale header, one item per batch draw, and (for credit sales) the
	// customer's debt increment plus its ledger entry. Nothing persists on
	// failure.
	RecordSale(ctx context.Context, sale domain.Sale, lines []domain.SaleLine) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)

	// RecordPayment atomically decrements the customer's debt and appends a
	// Payment ledger entry. The amount is validated against the current debt
	// under the same lock that applies the decrement.
	RecordPayment(ctx context.Context, payment domain.CustomerTransaction) (*domain.CustomerTransaction, error)

	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) (*domain.PurchaseOrder, error)
	GetPurchaseOrderByID(ctx context.Context, id string) (*domain.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, status string, limit int) ([]domain.PurchaseOrder, error)

	GetDashboardSummary(ctx context.Context, from time.Time, to time.Time) (domain.DashboardSummary, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
