package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/dailyloan/pkg/ledger"
	"github.com/mcclellann/dailyloan/pkg/models"
	"github.com/mcclellann/dailyloan/pkg/report"
	"github.com/mcclellann/dailyloan/pkg/statement"
	"github.com/mcclellann/dailyloan/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Server holds the ledger, the report aggregator and the storage they share.
type Server struct {
	ledger   *ledger.Ledger
	reports  *report.Aggregator
	storage  store.Storage
	validate *validator.Validate
	logger   *zap.Logger
	loc      *time.Location // decides what "today" is
}

// NewServer wires the HTTP handlers. loc is the business timezone used to
// resolve "today" for requests without an explicit date.
func NewServer(l *ledger.Ledger, agg *report.Aggregator, s store.Storage, logger *zap.Logger, loc *time.Location) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Server{
		ledger:   l,
		reports:  agg,
		storage:  s,
		validate: validator.New(),
		logger:   logger,
		loc:      loc,
	}
}

// Router wires every console operation. Metrics are served only when m is set.
func (s *Server) Router(m *metrics) *mux.Router {
	router := mux.NewRouter()
	if m != nil {
		router.Use(m.middleware)
		router.Handle("/metrics", m.handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)

	router.HandleFunc("/customers", s.listCustomersHandler).Methods(http.MethodGet)
	router.HandleFunc("/customers", s.createCustomerHandler).Methods(http.MethodPost)
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods(http.MethodGet)
	router.HandleFunc("/customers/{id}", s.updateCustomerHandler).Methods(http.MethodPut)
	router.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods(http.MethodDelete)
	router.HandleFunc("/customers/{id}/loans", s.listLoansHandler).Methods(http.MethodGet)
	router.HandleFunc("/customers/{id}/loans", s.addLoanHandler).Methods(http.MethodPost)

	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", s.editLoanHandler).Methods(http.MethodPut)
	router.HandleFunc("/loans/{id}/close", s.closeLoanHandler).Methods(http.MethodPost)
	router.HandleFunc("/loans/{id}/statement", s.statementHandler).Methods(http.MethodGet)

	router.HandleFunc("/collections", s.collectionSheetHandler).Methods(http.MethodGet)
	router.HandleFunc("/entries/{id}/payment", s.recordPaymentHandler).Methods(http.MethodPut)

	router.HandleFunc("/reports/snapshot", s.snapshotHandler).Methods(http.MethodGet)
	router.HandleFunc("/reports/range", s.rangeReportHandler).Methods(http.MethodGet)
	return router
}

type loanTermsRequest struct {
	TotalAmount  decimal.Decimal  `json:"total_amount"`
	Interest     *decimal.Decimal `json:"interest"`
	AmountGiven  *decimal.Decimal `json:"amount_given"`
	DailyAmount  decimal.Decimal  `json:"daily_amount"`
	DurationDays int              `json:"duration_days" validate:"min=1,max=3660"`
	LoanDate     string           `json:"loan_date" validate:"required,datetime=2006-01-02"`
}

func (r loanTermsRequest) terms() models.LoanTerms {
	d, _ := models.ParseDate(r.LoanDate) // format checked by the validator
	return models.LoanTerms{
		TotalAmount:  r.TotalAmount,
		Interest:     r.Interest,
		AmountGiven:  r.AmountGiven,
		DailyAmount:  r.DailyAmount,
		DurationDays: r.DurationDays,
		LoanDate:     d,
	}
}

type customerProfileRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Mobile1       string `json:"mobile1" validate:"max=20"`
	Mobile2       string `json:"mobile2" validate:"max=20"`
	Address       string `json:"address" validate:"max=500"`
	ReferenceName string `json:"reference_name" validate:"max=120"`
}

func (r customerProfileRequest) profile() ledger.CustomerProfile {
	return ledger.CustomerProfile{
		Name:          r.Name,
		Mobile1:       r.Mobile1,
		Mobile2:       r.Mobile2,
		Address:       r.Address,
		ReferenceName: r.ReferenceName,
	}
}

// createCustomerRequest registers a customer, with their first loan when Loan is set.
type createCustomerRequest struct {
	Code string `json:"code" validate:"required,max=32"`
	customerProfileRequest
	Loan *loanTermsRequest `json:"loan"`
}

type closeLoanRequest struct {
	CloseAmount decimal.Decimal `json:"close_amount"`
	CloseDate   string          `json:"close_date" validate:"omitempty,datetime=2006-01-02"`
}

type paymentRequest struct {
	AmountPaid *decimal.Decimal `json:"amount_paid" validate:"required"`
}

type deleteCustomerRequest struct {
	Confirm bool   `json:"confirm"`
	Secret  string `json:"secret" validate:"max=256"`
}

type createCustomerResponse struct {
	Customer *models.Customer `json:"customer"`
	Loan     *models.Loan     `json:"loan,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !s.decode(w, r, &req) {
		return
	}
	in := ledger.NewCustomer{Code: req.Code, CustomerProfile: req.profile()}

	if req.Loan == nil {
		c, err := s.ledger.CreateCustomer(r.Context(), in)
		if err != nil {
			s.writeError(w, "create customer", err)
			return
		}
		writeJSON(w, http.StatusCreated, createCustomerResponse{Customer: c})
		return
	}

	c, loan, err := s.ledger.CreateLoan(r.Context(), in, req.Loan.terms())
	if err != nil {
		s.writeError(w, "create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, createCustomerResponse{Customer: c, Loan: loan})
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.ListCustomers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.writeError(w, "list customers", err)
		return
	}
	if customers == nil {
		customers = []*models.CustomerListing{}
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		s.writeError(w, "get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req customerProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	c, err := s.ledger.UpdateCustomer(r.Context(), id, req.profile())
	if err != nil {
		s.writeError(w, "update customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req deleteCustomerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.ledger.DeleteCustomer(r.Context(), id, req.Confirm, req.Secret); err != nil {
		s.writeError(w, "delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	loans, err := s.ledger.ListLoans(r.Context(), id)
	if err != nil {
		s.writeError(w, "list loans", err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) addLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req loanTermsRequest
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.ledger.AddLoan(r.Context(), id, req.terms())
	if err != nil {
		s.writeError(w, "add loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, "get loan", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) editLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req loanTermsRequest
	if !s.decode(w, r, &req) {
		return
	}
	loan, err := s.ledger.EditLoan(r.Context(), id, req.terms())
	if err != nil {
		s.writeError(w, "edit loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) closeLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req closeLoanRequest
	if !s.decode(w, r, &req) {
		return
	}
	closeDate := models.Today(s.loc)
	if req.CloseDate != "" {
		closeDate, _ = models.ParseDate(req.CloseDate)
	}
	loan, err := s.ledger.CloseLoan(r.Context(), id, req.CloseAmount, closeDate)
	if err != nil {
		s.writeError(w, "close loan", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) statementHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := s.ledger.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, "loan statement", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="statement-`+detail.Customer.Code+`.csv"`)
	if err := statement.WriteCSV(w, statement.Statement{
		Customer: detail.Customer,
		Loan:     detail.Loan,
		Entries:  detail.Entries,
	}); err != nil {
		s.logger.Error("writing statement failed", zap.String("loan_id", id.String()), zap.Error(err))
	}
}

func (s *Server) collectionSheetHandler(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r, "date")
	if !ok {
		return
	}
	sheet, err := s.ledger.CollectionSheet(r.Context(), date)
	if err != nil {
		s.writeError(w, "collection sheet", err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := s.ledger.RecordPayment(r.Context(), id, *req.AmountPaid)
	if err != nil {
		s.writeError(w, "record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) snapshotHandler(w http.ResponseWriter, r *http.Request) {
	date, ok := s.queryDate(w, r, "date")
	if !ok {
		return
	}
	snap, err := s.reports.Snapshot(r.Context(), date)
	if err != nil {
		s.writeError(w, "snapshot", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) rangeReportHandler(w http.ResponseWriter, r *http.Request) {
	from, ok := s.queryDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := s.queryDate(w, r, "to")
	if !ok {
		return
	}

	var customerID *uuid.UUID
	if raw := r.URL.Query().Get("customer"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid customer ID"})
			return
		}
		customerID = &id
	}

	rep, err := s.reports.Range(r.Context(), from, to, customerID)
	if err != nil {
		s.writeError(w, "range report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps ledger errors to status codes. Only unexpected failures are
// logged at error level.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidTerms), errors.Is(err, models.ErrDeleteNotConfirmed):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrDeleteUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrDuplicateActiveLoan),
		errors.Is(err, models.ErrEditAfterCollection),
		errors.Is(err, models.ErrLoanNotActive),
		errors.Is(err, models.ErrDuplicateCustomerCode):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
		msg = op + " failed"
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decode reads a JSON body into v and validates it, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationMessage(err)})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, e.Field()+" is required")
		case "datetime":
			msgs = append(msgs, e.Field()+" must be a date formatted "+e.Param())
		case "min", "max":
			msgs = append(msgs, e.Field()+" must be "+e.Tag()+" "+e.Param())
		default:
			msgs = append(msgs, e.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid ID"})
		return uuid.Nil, false
	}
	return id, true
}

// queryDate reads a YYYY-MM-DD query parameter, defaulting to today.
func (s *Server) queryDate(w http.ResponseWriter, r *http.Request, key string) (models.Date, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return models.Today(s.loc), true
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: key + " must be a date formatted 2006-01-02"})
		return models.Date{}, false
	}
	return d, true
}
