package cashbook

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/ledger"
	"github.com/vela-pos/vela-pos/internal/platform/httpx"
)

// Handler manages cashbook endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers cashbook routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.register)
	r.Get("/", h.list)
}

type registerRequest struct {
	CompanyID  int64     `json:"company_id" validate:"required"`
	Instrument string    `json:"instrument" validate:"required,oneof=CASH BANK"`
	Direction  string    `json:"direction" validate:"required,oneof=IN OUT"`
	Amount     float64   `json:"amount" validate:"required,gt=0"`
	Memo       string    `json:"memo"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	movement, err := h.service.Register(r.Context(), Movement{
		CompanyID:  req.CompanyID,
		Instrument: ledger.Instrument(req.Instrument),
		Direction:  Direction(req.Direction),
		Amount:     req.Amount,
		Memo:       req.Memo,
		RefModule:  "manual",
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidMovement) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("register cash movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, _ := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	movements, err := h.service.List(r.Context(), companyID, limit)
	if err != nil {
		h.logger.Error("list cash movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}
