package credit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/platform/httpx"
)

// Handler manages customer credit endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers credit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{customerID}", h.listCredits)
	r.Get("/customers/{customerID}/available", h.available)
	r.Post("/customers/{customerID}/payments", h.allocatePayment)
	r.Post("/{creditID}/cancel", h.cancel)
}

func (h *Handler) listCredits(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := h.customerIDs(w, r)
	if !ok {
		return
	}
	credits, err := h.service.ListCredits(r.Context(), companyID, customerID)
	if err != nil {
		h.logger.Error("list credits", slog.Any("error", err), slog.Int64("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credits": credits})
}

func (h *Handler) available(w http.ResponseWriter, r *http.Request) {
	companyID, customerID, ok := h.customerIDs(w, r)
	if !ok {
		return
	}
	available, err := h.service.Available(r.Context(), companyID, customerID)
	if err != nil {
		if errors.Is(err, ErrCustomerNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("credit available", slog.Any("error", err), slog.Int64("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "available": available})
}

type allocateRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handler) allocatePayment(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return
	}
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	allocations, remainder, err := h.service.AllocatePayment(r.Context(), req.CompanyID, customerID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrCustomerNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidAmount):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("allocate payment", slog.Any("error", err), slog.Int64("customer_id", customerID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"allocations": allocations,
		"remainder":   remainder,
	})
}

type cancelRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	creditID, err := strconv.ParseInt(chi.URLParam(r, "creditID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid credit id")
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Cancel(r.Context(), req.CompanyID, creditID); err != nil {
		switch {
		case errors.Is(err, ErrCreditNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidStatus):
			httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
		default:
			h.logger.Error("cancel credit", slog.Any("error", err), slog.Int64("credit_id", creditID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *Handler) customerIDs(w http.ResponseWriter, r *http.Request) (companyID, customerID int64, ok bool) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid customer id")
		return 0, 0, false
	}
	companyID, _ = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return 0, 0, false
	}
	return companyID, customerID, true
}
