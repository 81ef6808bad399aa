package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/dailyloan/pkg/ledger"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/report"
	"github.com/mcclellann/dailyloan/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const deleteSecret = "let-me-delete"

func setupTestServer(t *testing.T) (*Server, *mux.Router, *metrics) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "api_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(deleteSecret), bcrypt.MinCost)
	require.NoError(t, err)
	guard, err := ledger.NewBcryptGuard(string(hash))
	require.NoError(t, err)

	m := newMetrics()
	l := ledger.NewLedger(s, ledger.WithDeleteGuard(guard), ledger.WithAuditTrail(), ledger.WithObserver(m.observeLedger))
	server := NewServer(l, report.NewAggregator(s, nil), s, nil, time.UTC)
	return server, server.Router(m), m
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createWithLoan(t *testing.T, router http.Handler, code string) createCustomerResponse {
	t.Helper()
	rr := do(t, router, http.MethodPost, "/customers", map[string]any{
		"code":    code,
		"name":    "Customer " + code,
		"mobile1": "9000000000",
		"loan": map[string]any{
			"total_amount":  "500",
			"daily_amount":  "100",
			"duration_days": 5,
			"loan_date":     "2024-01-01",
		},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[createCustomerResponse](t, rr)
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router, _ := setupTestServer(t)

	created := createWithLoan(t, router, "C001")
	require.NotNil(t, created.Loan)
	assert.Equal(t, "2024-01-02", created.Loan.StartDate.String())
	assert.Equal(t, models.LoanStatusActive, created.Loan.Status)

	rr := do(t, router, http.MethodGet, "/loans/"+created.Loan.ID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	detail := decodeBody[ledger.LoanDetail](t, rr)
	assert.Len(t, detail.Entries, 5)
	assert.Equal(t, "C001", detail.Customer.Code)
	assert.True(t, detail.Summary.Remaining.Equal(decimal.NewFromInt(500)))

	rr = do(t, router, http.MethodGet, "/customers?search=c00", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	listing := decodeBody[[]models.CustomerListing](t, rr)
	require.Len(t, listing, 1)
	assert.Equal(t, 1, listing[0].TotalLoans)
}

func TestAPI_CreateCustomerWithoutLoan(t *testing.T) {
	_, router, _ := setupTestServer(t)

	rr := do(t, router, http.MethodPost, "/customers", map[string]any{"code": "C010", "name": "Anand"})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decodeBody[createCustomerResponse](t, rr)
	assert.Nil(t, created.Loan)

	rr = do(t, router, http.MethodPost, "/customers/"+created.Customer.ID.String()+"/loans", map[string]any{
		"total_amount": "300", "daily_amount": "30", "duration_days": 10, "loan_date": "2024-05-01",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/customers/"+created.Customer.ID.String()+"/loans", map[string]any{
		"total_amount": "300", "daily_amount": "30", "duration_days": 10, "loan_date": "2024-06-01",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/customers/"+created.Customer.ID.String()+"/loans", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Loan](t, rr), 1)
}

func TestAPI_RequestValidation(t *testing.T) {
	_, router, _ := setupTestServer(t)

	cases := map[string]any{
		"missing name": map[string]any{"code": "C001"},
		"bad loan date": map[string]any{"code": "C001", "name": "Ravi", "loan": map[string]any{
			"total_amount": "500", "daily_amount": "100", "duration_days": 5, "loan_date": "01/01/2024",
		}},
		"zero duration": map[string]any{"code": "C001", "name": "Ravi", "loan": map[string]any{
			"total_amount": "500", "daily_amount": "100", "duration_days": 0, "loan_date": "2024-01-01",
		}},
		"negative daily": map[string]any{"code": "C001", "name": "Ravi", "loan": map[string]any{
			"total_amount": "500", "daily_amount": "-100", "duration_days": 5, "loan_date": "2024-01-01",
		}},
		"oversized total": map[string]any{"code": "C001", "name": "Ravi", "loan": map[string]any{
			"total_amount": "100000000000000000", "daily_amount": "100", "duration_days": 5, "loan_date": "2024-01-01",
		}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/customers", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	rr := do(t, router, http.MethodGet, "/loans/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	router.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestAPI_PaymentCloseAndReports(t *testing.T) {
	_, router, _ := setupTestServer(t)
	created := createWithLoan(t, router, "C001")
	loanPath := "/loans/" + created.Loan.ID.String()

	detail := decodeBody[ledger.LoanDetail](t, do(t, router, http.MethodGet, loanPath, nil))
	first := detail.Entries[0]
	require.Equal(t, "2024-01-02", first.CollectionDate.String())

	rr := do(t, router, http.MethodPut, "/entries/"+first.ID.String()+"/payment", map[string]any{"amount_paid": "100"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	entry := decodeBody[models.DueEntry](t, rr)
	assert.Equal(t, models.EntryStatusPaid, entry.Status)

	rr = do(t, router, http.MethodPut, "/entries/"+first.ID.String()+"/payment", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "amount_paid is required")

	rr = do(t, router, http.MethodGet, "/reports/snapshot?date=2024-01-02", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	snap := decodeBody[report.Snapshot](t, rr)
	assert.True(t, snap.Collected.Equal(decimal.NewFromInt(100)))

	rr = do(t, router, http.MethodGet, "/reports/range?from=2024-01-02&to=2024-01-06", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rep := decodeBody[report.RangeReport](t, rr)
	assert.True(t, rep.TotalDue.Equal(decimal.NewFromInt(500)))
	assert.True(t, rep.TotalPaid.Equal(decimal.NewFromInt(100)))
	assert.True(t, rep.TotalPending.Equal(decimal.NewFromInt(400)))

	rr = do(t, router, http.MethodGet, "/reports/range?from=2024-01-06&to=2024-01-02", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/collections?date=2024-01-03", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sheet := decodeBody[ledger.CollectionSheet](t, rr)
	require.Len(t, sheet.Rows, 1)
	assert.True(t, sheet.Pending.Equal(decimal.NewFromInt(100)))

	rr = do(t, router, http.MethodPut, loanPath, map[string]any{
		"total_amount": "700", "daily_amount": "70", "duration_days": 10, "loan_date": "2024-01-01",
	})
	assert.Equal(t, http.StatusConflict, rr.Code, "collection has started")

	rr = do(t, router, http.MethodPost, loanPath+"/close", map[string]any{"close_amount": "400", "close_date": "2024-01-03"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	closed := decodeBody[models.Loan](t, rr)
	assert.Equal(t, models.LoanStatusClosed, closed.Status)

	detail = decodeBody[ledger.LoanDetail](t, do(t, router, http.MethodGet, loanPath, nil))
	require.Len(t, detail.Entries, 3)
	assert.Equal(t, "2024-01-06", detail.Entries[2].CollectionDate.String())
	assert.Len(t, detail.Audit, 2)

	rr = do(t, router, http.MethodPost, loanPath+"/close", map[string]any{"close_amount": "1"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestAPI_Statement(t *testing.T) {
	_, router, _ := setupTestServer(t)
	created := createWithLoan(t, router, "C001")

	rr := do(t, router, http.MethodGet, "/loans/"+created.Loan.ID.String()+"/statement", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))

	r := csv.NewReader(rr.Body)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Customer Code", "C001"}, records[0])
	assert.Equal(t, []string{"2024-01-06", "100.00", "0.00", "Pending"}, records[len(records)-1])
}

func TestAPI_DeleteCustomer(t *testing.T) {
	_, router, _ := setupTestServer(t)
	created := createWithLoan(t, router, "C001")
	path := "/customers/" + created.Customer.ID.String()

	rr := do(t, router, http.MethodDelete, path, map[string]any{"confirm": true, "secret": "guess"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodDelete, path, map[string]any{"confirm": false, "secret": deleteSecret})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodDelete, path, map[string]any{"confirm": true, "secret": deleteSecret})
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/loans/"+created.Loan.ID.String(), nil).Code)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	_, router, _ := setupTestServer(t)

	rr := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	createWithLoan(t, router, "C001")

	rr = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `dailyloan_ledger_operations_total{op="create_loan",result="ok"} 1`)
	assert.Contains(t, body, `dailyloan_http_requests_total{code="201",method="POST",route="/customers"} 1`)
}
