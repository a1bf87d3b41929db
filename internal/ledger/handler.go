package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vela-pos/vela-pos/internal/accounts"
	"github.com/vela-pos/vela-pos/internal/platform/httpx"
)

// Handler manages journal endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.post)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
}

type postLineRequest struct {
	AccountCode string  `json:"account_code" validate:"required"`
	Movement    string  `json:"movement" validate:"required,oneof=DEBIT CREDIT"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
}

type postEntryRequest struct {
	CompanyID   int64             `json:"company_id" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Date        time.Time         `json:"date"`
	Description string            `json:"description"`
	SourceID    string            `json:"source_id"`
	ActorID     int64             `json:"actor_id"`
	Lines       []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := PostingInput{
		CompanyID:    req.CompanyID,
		Type:         EntryType(req.Type),
		Date:         req.Date,
		Description:  req.Description,
		SourceModule: "manual",
		SourceID:     uuid.New(),
		ActorID:      req.ActorID,
	}
	if req.Date.IsZero() {
		input.Date = time.Now()
	}
	if req.SourceID != "" {
		parsed, err := uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid source_id")
			return
		}
		input.SourceID = parsed
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{
			AccountCode: line.AccountCode,
			Movement:    Movement(line.Movement),
			Amount:      line.Amount,
		})
	}

	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) respondPostError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, accounts.ErrAccountNotFound), errors.Is(err, accounts.ErrAccountInactive):
		httpx.Problem(w, http.StatusBadRequest, "Unknown Account", err.Error())
	default:
		h.logger.Error("post journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, entryID, ok := h.ids(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), companyID, entryID)
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrEntryCorrupted):
			h.logger.Error("corrupted journal entry", slog.Any("error", err), slog.Int64("id", entryID))
			httpx.Problem(w, http.StatusInternalServerError, "Corrupted Entry", err.Error())
		default:
			h.logger.Error("get journal entry", slog.Any("error", err), slog.Int64("id", entryID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
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
	entries, err := h.service.List(r.Context(), companyID, limit)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type reverseRequest struct {
	CompanyID   int64  `json:"company_id" validate:"required"`
	Description string `json:"description"`
	ActorID     int64  `json:"actor_id"`
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	reversal, err := h.service.Reverse(r.Context(), req.CompanyID, ReverseInput{
		EntryID:     entryID,
		ActorID:     req.ActorID,
		Description: req.Description,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidStatus):
			httpx.Problem(w, http.StatusConflict, "Invalid Status", "only confirmed entries can be reversed")
		default:
			h.logger.Error("reverse journal entry", slog.Any("error", err), slog.Int64("id", entryID))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) ids(w http.ResponseWriter, r *http.Request) (companyID, entryID int64, ok bool) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return 0, 0, false
	}
	companyID, _ = strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "company_id is required")
		return 0, 0, false
	}
	return companyID, entryID, true
}
