package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dawakhana/backend/internal/cache"
	"dawakhana/backend/internal/domain"
	"dawakhana/backend/internal/ledger"
	"dawakhana/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real ledger service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := ledger.New(repo, cache.NoopAlertCache{}, 30, 0)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleMedicines_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleMedicines_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["medicines"] == nil {
		t.Fatalf("expected medicines key in response, got %v", body)
	}
}

func TestRecordSaleEndpointComputesTotals(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: "med-paracetamol-500", Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp domain.SaleResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if !resp.Sale.TotalAmountBeforeTax.Equal(decimal.RequireFromString("40.00")) {
		t.Fatalf("expected subtotal 40.00, got %s", resp.Sale.TotalAmountBeforeTax)
	}
	if !resp.Sale.TotalTaxAmount.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("expected tax 2.00, got %s", resp.Sale.TotalTaxAmount)
	}
	if !resp.Sale.TotalAmountDue.Equal(decimal.RequireFromString("42.00")) {
		t.Fatalf("expected total 42.00, got %s", resp.Sale.TotalAmountDue)
	}
	if resp.Sale.CreatedByUserID != "pharmacist" {
		t.Fatalf("expected sale attributed to pharmacist, got %q", resp.Sale.CreatedByUserID)
	}
}

func TestRecordSaleEndpointRejectsUnknownMedicine(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.RecordSaleRequest{
		PaymentMethod: domain.PaymentCash,
		Cart: []domain.CartLine{
			{MedicineID: "med-nope", Quantity: 1, Unit: domain.UnitTablet},
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestPharmacistCannotCreateMedicine(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.MedicineCreateRequest{
		Name:             "Ibuprofen 400mg",
		BaseSellingPrice: decimal.RequireFromString("3.00"),
		TabletsPerStrip:  10,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medicines", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStockReceiveRouteRejectsPharmacist(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")
	csrf := fetchCSRFToken(t, api)

	payload, _ := json.Marshal(domain.ReceiveStockRequest{
		MedicineID:           "med-paracetamol-500",
		BatchNumber:          "PCM-9999",
		ExpiryDate:           time.Now().UTC().AddDate(1, 0, 0).Format("2006-01-02"),
		QuantityInBoxes:      1,
		PurchasePricePerUnit: decimal.RequireFromString("1.10"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/stock/receive", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCustomerPaymentEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")
	csrf := fetchCSRFToken(t, api)

	// Put the seeded customer in debt first via a credit sale.
	salePayload, _ := json.Marshal(domain.RecordSaleRequest{
		CustomerID:    "cust-sharma",
		PaymentMethod: domain.PaymentCredit,
		Cart: []domain.CartLine{
			{MedicineID: "med-paracetamol-500", Quantity: 2, Unit: domain.UnitStrip},
		},
	})
	saleReq := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(salePayload))
	saleReq.Header.Set("Content-Type", "application/json")
	saleReq.Header.Set("Authorization", "Bearer "+token)
	saleReq.Header.Set("X-CSRF-Token", csrf)
	saleRec := httptest.NewRecorder()
	handler.ServeHTTP(saleRec, saleReq)
	if saleRec.Code != http.StatusCreated {
		t.Fatalf("credit sale failed: %d (body: %s)", saleRec.Code, saleRec.Body.String())
	}

	payload, _ := json.Marshal(domain.RecordPaymentRequest{
		Amount:        decimal.RequireFromString("40.00"),
		PaymentMethod: domain.PaymentCash,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/customers/cust-sharma/payments", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	ledgerReq := httptest.NewRequest(http.MethodGet, "/api/v1/customers/cust-sharma/ledger", nil)
	ledgerReq.Header.Set("Authorization", "Bearer "+token)
	ledgerRec := httptest.NewRecorder()
	handler.ServeHTTP(ledgerRec, ledgerReq)

	if ledgerRec.Code != http.StatusOK {
		t.Fatalf("ledger fetch failed: %d (body: %s)", ledgerRec.Code, ledgerRec.Body.String())
	}
	var ledgerResp domain.CustomerLedgerResponse
	if err := json.NewDecoder(ledgerRec.Body).Decode(&ledgerResp); err != nil {
		t.Fatalf("decode ledger response: %v", err)
	}
	if !ledgerResp.Customer.DebtAmount.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("expected remaining debt 2.00, got %s", ledgerResp.Customer.DebtAmount)
	}
	if len(ledgerResp.Transactions) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(ledgerResp.Transactions))
	}
}

func TestStockAlertsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts/stock", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var alerts domain.StockAlerts
	if err := json.NewDecoder(rec.Body).Decode(&alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if alerts.WindowDays != 30 {
		t.Fatalf("expected 30 day window, got %d", alerts.WindowDays)
	}
}

func TestDashboardRouteRejectsPharmacist(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "pharmacist", "pharma123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
