package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/platform/httpx"
)

// Handler manages chart-of-accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/seed", h.seed)
	r.Patch("/{code}", h.setActive)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, ok := companyParam(w, r)
	if !ok {
		return
	}
	accts, err := h.service.List(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accts})
}

type seedRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Seed(r.Context(), req.CompanyID); err != nil {
		h.logger.Error("seed accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"seeded": true})
}

type setActiveRequest struct {
	CompanyID int64 `json:"company_id" validate:"required"`
	Active    bool  `json:"active"`
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req setActiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.SetActive(r.Context(), req.CompanyID, code, req.Active); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("set account active", slog.Any("error", err), slog.String("code", code))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"code": code, "active": req.Active})
}

func companyParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return 0, false
	}
	return companyID, true
}
