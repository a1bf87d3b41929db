package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vela-pos/vela-pos/internal/platform/httpx"
)

// Handler manages stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjust", h.adjust)
	r.Get("/{productID}", h.quantity)
	r.Get("/{productID}/movements", h.movements)
}

type adjustRequest struct {
	CompanyID int64   `json:"company_id" validate:"required"`
	ProductID int64   `json:"product_id" validate:"required"`
	VariantID int64   `json:"variant_id"`
	Delta     float64 `json:"delta" validate:"required"`
	Reason    string  `json:"reason" validate:"required,oneof=PURCHASE ADJUSTMENT RETURN"`
	RefID     string  `json:"ref_id"`
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	newQty, err := h.service.Adjust(r.Context(), AdjustInput{
		CompanyID: req.CompanyID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Delta:     req.Delta,
		Reason:    Reason(req.Reason),
		RefModule: "manual",
		RefID:     req.RefID,
	})
	if err != nil {
		var insufficientErr *InsufficientStockError
		if errors.As(err, &insufficientErr) {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", insufficientErr.Error())
			return
		}
		h.logger.Error("adjust stock", slog.Any("error", err), slog.Int64("product_id", req.ProductID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"quantity": newQty})
}

func (h *Handler) quantity(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.ids(w, r)
	if !ok {
		return
	}
	variantID, _ := strconv.ParseInt(r.URL.Query().Get("variant_id"), 10, 64)
	qty, err := h.service.Quantity(r.Context(), companyID, productID, variantID)
	if err != nil {
		h.logger.Error("get stock quantity", slog.Any("error", err), slog.Int64("product_id", productID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": productID, "variant_id": variantID, "quantity": qty})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	companyID, productID, ok := h.ids(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	movements, err := h.service.Movements(r.Context(), companyID, productID, limit)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err), slog.Int64("product_id", productID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (companyID, productID int64, ok bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
		return 0, 0, false
	}
	companyID, _ = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return 0, 0, false
	}
	return companyID, productID, true
}
