package tracker

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	apphttp "github.com/meridianswap/points-middleware/pkg/app/http"
	"github.com/meridianswap/points-middleware/pkg/transaction"
)

// Handler exposes the transaction ingestion endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates the tracker HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the tracker endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/transactions", apphttp.HandleError(h.record))
	r.Post("/transactions/sync", apphttp.HandleError(h.sync))
	r.Get("/users/{address}/transactions", apphttp.HandleError(h.list))
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request) error {
	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "missing required fields")
	}

	res, err := h.svc.Record(r.Context(), &req)
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusCreated, &successResponse{Success: true, Data: res})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) error {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "missing required fields")
	}

	res, err := h.svc.Sync(r.Context(), &req)
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: res})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) error {
	address := chi.URLParam(r, "address")

	var typ *transaction.Type
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := transaction.Type(raw)
		typ = &t
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	res, err := h.svc.List(r.Context(), address, typ, page, pageSize)
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: res})
}
