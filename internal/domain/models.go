package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitLevel names one of the three nested count scales for a medicine:
// smallest dispensing unit (tablet), intermediate pack (strip), bulk
// container (box).
type UnitLevel string

const (
	UnitTablet UnitLevel = "Tablet"
	UnitStrip  UnitLevel = "Strip"
	UnitBox    UnitLevel = "Box"
)

const (
	PaymentCash   = "Cash"
	PaymentUPI    = "UPI"
	PaymentCredit = "Credit"
)

const (
	CustomerTxPayment = "Payment"
	CustomerTxCredit  = "Credit"
)

const (
	PurchaseOrderStatusPlaced   = "placed"
	PurchaseOrderStatusReceived = "received"
)

type Medicine struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Composition       string          `json:"composition"`
	Category          string          `json:"category"`
	Company           string          `json:"company"`
	BasePurchasePrice decimal.Decimal `json:"base_purchase_price"`
	BaseSellingPrice  decimal.Decimal `json:"base_selling_price"`
	TabletsPerStrip   int64           `json:"tablets_per_strip"`
	StripsPerBox      int64           `json:"strips_per_box"`
	ReorderPoint      int64           `json:"reorder_point"`
	TaxRateGst        decimal.Decimal `json:"tax_rate_gst"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type MedicineCreateRequest struct {
	Name              string          `json:"name"`
	Composition       string          `json:"composition"`
	Category          string          `json:"category"`
	Company           string          `json:"company"`
	BasePurchasePrice decimal.Decimal `json:"base_purchase_price"`
	BaseSellingPrice  decimal.Decimal `json:"base_selling_price"`
	TabletsPerStrip   int64           `json:"tablets_per_strip"`
	StripsPerBox      int64           `json:"strips_per_box"`
	ReorderPoint      int64           `json:"reorder_point"`
	TaxRateGst        decimal.Decimal `json:"tax_rate_gst"`
}

type MedicineUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	Composition       *string          `json:"composition,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Company           *string          `json:"company,omitempty"`
	BasePurchasePrice *decimal.Decimal `json:"base_purchase_price,omitempty"`
	BaseSellingPrice  *decimal.Decimal `json:"base_selling_price,omitempty"`
	TabletsPerStrip   *int64           `json:"tablets_per_strip,omitempty"`
	StripsPerBox      *int64           `json:"strips_per_box,omitempty"`
	ReorderPoint      *int64           `json:"reorder_point,omitempty"`
	TaxRateGst        *decimal.Decimal `json:"tax_rate_gst,omitempty"`
}

// Batch is one received lot of a medicine. Each receipt creates a distinct
// batch; batches of the same number are never merged.
type Batch struct {
	ID                      string          `json:"id"`
	MedicineID              string          `json:"medicine_id"`
	BatchNumber             string          `json:"batch_number"`
	ExpiryDate              time.Time       `json:"expiry_date"`
	QuantityInSmallestUnits int64           `json:"quantity_in_smallest_units"`
	PurchasePricePerUnit    decimal.Decimal `json:"purchase_price_per_unit"`
	SupplierID              string          `json:"supplier_id,omitempty"`
	ReceivedAt              time.Time       `json:"received_at"`
}

type ReceiveStockRequest struct {
	MedicineID           string          `json:"medicine_id"`
	BatchNumber          string          `json:"batch_number"`
	ExpiryDate           string          `json:"expiry_date"`
	QuantityInBoxes      int64           `json:"quantity_in_boxes"`
	PurchasePricePerUnit decimal.Decimal `json:"purchase_price_per_unit"`
	SupplierID           string          `json:"supplier_id,omitempty"`
}

type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Email      string          `json:"email"`
	DebtAmount decimal.Decimal `json:"debt_amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type Supplier struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	ContactPerson         string          `json:"contact_person"`
	Phone                 string          `json:"phone"`
	Email                 string          `json:"email"`
	AccountPayableBalance decimal.Decimal `json:"account_payable_balance"`
	CreatedAt             time.Time       `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
}

// CartLine is one UI cart entry: a medicine, a count, and the unit scale
// the count was entered in.
type CartLine struct {
	MedicineID string    `json:"medicine_id"`
	Quantity   int64     `json:"quantity"`
	Unit       UnitLevel `json:"unit"`
}

type RecordSaleRequest struct {
	CustomerID    string     `json:"customer_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	Cart          []CartLine `json:"cart"`
}

// SaleLine is a priced cart line handed to the store for atomic commit.
// Quantity is already converted to smallest units and prices are the
// point-in-time snapshot taken by the ledger service.
type SaleLine struct {
	MedicineID       string
	QuantityUnits    int64
	UnitSellingPrice decimal.Decimal
	GstRate          decimal.Decimal
}

type Sale struct {
	ID                   string          `json:"id"`
	SaleDate             time.Time       `json:"sale_date"`
	CustomerID           string          `json:"customer_id,omitempty"`
	TotalAmountBeforeTax decimal.Decimal `json:"total_amount_before_tax"`
	TotalTaxAmount       decimal.Decimal `json:"total_tax_amount"`
	TotalAmountDue       decimal.Decimal `json:"total_amount_due"`
	AmountPaid           decimal.Decimal `json:"amount_paid"`
	BalanceDue           decimal.Decimal `json:"balance_due"`
	PaymentMethod        string          `json:"payment_method"`
	InvoiceNumber        string          `json:"invoice_number"`
	CreatedByUserID      string          `json:"created_by_user_id"`
	CreatedAt            time.Time       `json:"created_at"`
	Items                []SaleItem      `json:"items,omitempty"`
}

// SaleItem captures one batch draw of a sale. A cart line that spans
// multiple batches produces one item per batch touched, each carrying the
// cost basis of its own batch.
type SaleItem struct {
	ID                  string          `json:"id"`
	SaleID              string          `json:"sale_id"`
	MedicineID          string          `json:"medicine_id"`
	BatchID             string          `json:"batch_id"`
	QuantitySold        int64           `json:"quantity_sold"`
	UnitSellingPrice    decimal.Decimal `json:"unit_selling_price"`
	PurchasePriceAtSale decimal.Decimal `json:"purchase_price_at_sale"`
	GstRateApplied      decimal.Decimal `json:"gst_rate_applied"`
	ItemTotalBeforeTax  decimal.Decimal `json:"item_total_before_tax"`
	ItemTaxAmount       decimal.Decimal `json:"item_tax_amount"`
	ItemTotalWithTax    decimal.Decimal `json:"item_total_with_tax"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

// CustomerTransaction is the append-only audit trail running parallel to
// the customer's debt balance.
type CustomerTransaction struct {
	ID              string          `json:"id"`
	CustomerID      string          `json:"customer_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method"`
	Description     string          `json:"description,omitempty"`
	RelatedSaleID   string          `json:"related_sale_id,omitempty"`
	CreatedByUserID string          `json:"created_by_user_id"`
	CreatedAt       time.Time       `json:"created_at"`
}

type RecordPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
}

type CustomerLedgerResponse struct {
	Customer     Customer              `json:"customer"`
	Transactions []CustomerTransaction `json:"transactions"`
}

type PurchaseOrder struct {
	ID              string              `json:"id"`
	SupplierID      string              `json:"supplier_id"`
	OrderDate       time.Time           `json:"order_date"`
	Status          string              `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	CreatedByUserID string              `json:"created_by_user_id"`
	CreatedAt       time.Time           `json:"created_at"`
	Items           []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderItem struct {
	ID                string          `json:"id"`
	PurchaseOrderID   string          `json:"purchase_order_id"`
	MedicineID        string          `json:"medicine_id"`
	RequestedQuantity int64           `json:"requested_quantity"`
	UnitPriceAtOrder  decimal.Decimal `json:"unit_price_at_order"`
	TotalPrice        decimal.Decimal `json:"total_price"`
}

type PurchaseOrderLineRequest struct {
	MedicineID        string          `json:"medicine_id"`
	RequestedQuantity int64           `json:"requested_quantity"`
	UnitPriceAtOrder  decimal.Decimal `json:"unit_price_at_order"`
}

type PurchaseOrderCreateRequest struct {
	SupplierID string                     `json:"supplier_id"`
	Items      []PurchaseOrderLineRequest `json:"items"`
}

type PurchaseOrderResponse struct {
	PurchaseOrder PurchaseOrder `json:"purchase_order"`
}

type ExpiringBatchAlert struct {
	BatchID                 string `json:"batch_id"`
	MedicineID              string `json:"medicine_id"`
	MedicineName            string `json:"medicine_name"`
	BatchNumber             string `json:"batch_number"`
	ExpiryDate              string `json:"expiry_date"`
	QuantityInSmallestUnits int64  `json:"quantity_in_smallest_units"`
	Expired                 bool   `json:"expired"`
}

type LowStockAlert struct {
	MedicineID   string `json:"medicine_id"`
	Name         string `json:"name"`
	CurrentStock int64  `json:"current_stock"`
	ReorderPoint int64  `json:"reorder_point"`
}

type StockAlerts struct {
	GeneratedAt string               `json:"generated_at"`
	WindowDays  int                  `json:"window_days"`
	Expiring    []ExpiringBatchAlert `json:"expiring"`
	LowStock    []LowStockAlert      `json:"low_stock"`
}

type DashboardSummary struct {
	Date             string          `json:"date"`
	SalesCount       int64           `json:"sales_count"`
	RevenueBeforeTax decimal.Decimal `json:"revenue_before_tax"`
	TaxCollected     decimal.Decimal `json:"tax_collected"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	CreditExtended   decimal.Decimal `json:"credit_extended"`
	PaymentsReceived decimal.Decimal `json:"payments_received"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type PharmacistCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PharmacistUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
