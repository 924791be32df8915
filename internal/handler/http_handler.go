package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-invoice-approvals/internal/apperrors"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/domain"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/logger"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/middleware"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/ocr"
	"github.com/pesio-ai/be-ap-invoice-approvals/internal/service"
)

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	service  *service.InvoiceService
	log      *logger.Logger
	validate *validator.Validate
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(service *service.InvoiceService, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		service:  service,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes registers the invoice approval endpoints on mux.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/invoices/get", h.GetInvoice)
	mux.HandleFunc("/api/v1/invoices/validate", h.ValidateInvoice)
	mux.HandleFunc("/api/v1/invoices/approval-requirements", h.GetApprovalRequirements)
	mux.HandleFunc("/api/v1/invoices/submit", h.SubmitForApproval)
	mux.HandleFunc("/api/v1/invoices/approve", h.ApproveInvoice)
	mux.HandleFunc("/api/v1/invoices/reject", h.RejectInvoice)
	mux.HandleFunc("/api/v1/invoices/approvals", h.GetApprovalHistory)
	mux.HandleFunc("/api/v1/invoices/pending", h.ListPendingApprovals)
	mux.HandleFunc("/api/v1/invoices/extraction", h.RecordExtraction)
}

type validateInvoiceRequest struct {
	Invoice *domain.InvoiceReceived `json:"invoice" validate:"required"`
	Lines   []*domain.InvoiceLine   `json:"lines"`
}

type submitRequest struct {
	ID string `json:"id" validate:"required"`
}

type approveRequest struct {
	ID       string `json:"id" validate:"required"`
	Level    string `json:"level" validate:"omitempty,oneof=manager accounting"`
	Comments string `json:"comments" validate:"max=2000"`
}

type rejectRequest struct {
	ID       string `json:"id" validate:"required"`
	Reason   string `json:"reason" validate:"max=1000"`
	Comments string `json:"comments" validate:"max=2000"`
}

type extractionRequest struct {
	ID      string                 `json:"id" validate:"required"`
	Results []ocr.ExtractionResult `json:"results" validate:"required,min=1"`
}

// GetInvoice handles get invoice HTTP requests
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	invoiceID := r.URL.Query().Get("id")
	if invoiceID == "" {
		h.writeError(w, r, apperrors.InvalidInput("id", "invoice id is required"))
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, invoice)
}

// ValidateInvoice runs structural validation. Failures are reported in the body.
func (h *HTTPHandler) ValidateInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	var req validateInvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := req.Lines
	if lines == nil {
		lines = req.Invoice.Lines
	}
	h.writeJSON(w, http.StatusOK, h.service.ValidateInvoice(req.Invoice, lines))
}

// GetApprovalRequirements handles ?total=&centre_code= lookups
func (h *HTTPHandler) GetApprovalRequirements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	total, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("total")))
	if err != nil {
		h.writeError(w, r, apperrors.InvalidInput("total", "total must be a decimal amount"))
		return
	}

	var centre *string
	if c := strings.TrimSpace(r.URL.Query().Get("centre_code")); c != "" {
		centre = &c
	}

	req, err := h.service.GetApprovalRequirements(r.Context(), total, centre)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, req)
}

// SubmitForApproval handles submit for approval HTTP requests
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.SubmitForApproval(r.Context(), req.ID, id.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Validation.IsValid {
		h.writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ApproveInvoice handles approve invoice HTTP requests
func (h *HTTPHandler) ApproveInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.ApproveInvoice(r.Context(), &service.ApproveRequest{
		InvoiceID:  req.ID,
		ApproverID: id.UserID,
		Role:       id.Role,
		Level:      domain.ApprovalLevel(req.Level),
		Comments:   optional(req.Comments),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// RejectInvoice handles reject invoice HTTP requests
func (h *HTTPHandler) RejectInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RejectInvoice(r.Context(), &service.RejectRequest{
		InvoiceID:  req.ID,
		RejectorID: id.UserID,
		Role:       id.Role,
		Reason:     req.Reason,
		Comments:   optional(req.Comments),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// GetApprovalHistory handles ?id= history lookups
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	invoiceID := r.URL.Query().Get("id")
	if invoiceID == "" {
		h.writeError(w, r, apperrors.InvalidInput("id", "invoice id is required"))
		return
	}

	history, err := h.service.GetApprovalHistory(r.Context(), invoiceID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoice_id": invoiceID,
		"approvals":  history,
	})
}

// ListPendingApprovals returns the caller's approval queue (?centre_code=&limit=)
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, r, apperrors.InvalidInput("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	invoices, err := h.service.ListPendingApprovals(r.Context(), id.Role, r.URL.Query().Get("centre_code"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"invoices": invoices,
		"total":    len(invoices),
	})
}

// RecordExtraction stores consolidated OCR output for an invoice
func (h *HTTPHandler) RecordExtraction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return
	}

	if _, ok := h.identity(w, r); !ok {
		return
	}
	var req extractionRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.RecordExtraction(r.Context(), req.ID, req.Results)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) identity(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "UNAUTHENTICATED",
			Message: "caller identity required",
		}})
	}
	return id, ok
}

// decode reads a JSON body into dst and runs struct validation.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, apperrors.InvalidInput("body", "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.writeError(w, r, apperrors.InvalidInput(strings.ToLower(fe.Field()),
				"failed on the '"+fe.Tag()+"' rule"))
			return false
		}
		h.writeError(w, r, apperrors.InvalidInput("body", err.Error()))
		return false
	}
	return true
}

type errorDetail struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	detail := errorDetail{Code: string(code), Message: err.Error()}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		detail.Reason = appErr.Reason
		detail.Field = appErr.Field
		detail.Message = appErr.Message
	}

	status := httpStatus(code)
	if status == http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFrom(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
		detail.Message = "internal server error"
	}
	h.writeJSON(w, status, errorBody{Error: detail})
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
	}})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict, apperrors.ErrCodeStaleState:
		return http.StatusConflict
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
