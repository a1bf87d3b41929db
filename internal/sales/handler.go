package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/credit"
	"github.com/vela-pos/vela-pos/internal/platform/httpx"
	"github.com/vela-pos/vela-pos/internal/stock"
)

// Handler manages sale endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.settle)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/cancel", h.cancel)
	r.Get("/{id}/followups", h.followups)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sale, err := h.service.Settle(r.Context(), req)
	if err != nil {
		h.respondSettleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) respondSettleError(w http.ResponseWriter, err error) {
	var stockErr *stock.InsufficientStockError
	var limitErr *credit.LimitExceededError
	switch {
	case errors.As(err, &stockErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", stockErr.Error())
	case errors.As(err, &limitErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Credit Limit Exceeded", limitErr.Error())
	case errors.Is(err, ErrCustomerRequired), errors.Is(err, ErrOverpaid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("settle sale", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, saleID, ok := h.ids(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Get(r.Context(), companyID, saleID)
	if err != nil {
		if errors.Is(err, ErrSaleNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get sale", slog.Any("error", err), slog.Int64("id", saleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return
	}
	limit, offset := pagination(r)
	sales, err := h.service.List(r.Context(), companyID, limit, offset)
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	companyID, saleID, ok := h.ids(w, r)
	if !ok {
		return
	}
	sale, err := h.service.Cancel(r.Context(), companyID, saleID, actorID(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrSaleNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidStatus):
			httpx.Problem(w, http.StatusConflict, "Invalid Status", "only completed sales can be cancelled")
		default:
			h.logger.Error("cancel sale", slog.Any("error", err), slog.Int64("id", saleID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) followups(w http.ResponseWriter, r *http.Request) {
	_, saleID, ok := h.ids(w, r)
	if !ok {
		return
	}
	followups, err := h.service.Followups(r.Context(), saleID)
	if err != nil {
		h.logger.Error("list followups", slog.Any("error", err), slog.Int64("id", saleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"followups": followups})
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (companyID, saleID int64, ok bool) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid sale id")
		return 0, 0, false
	}
	companyID, _ = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return 0, 0, false
	}
	return companyID, saleID, true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64)
	return id
}
