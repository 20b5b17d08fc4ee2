package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/meridianswap/points-middleware/pkg/app/errors"
	apphttp "github.com/meridianswap/points-middleware/pkg/app/http"
)

// Handler exposes the administrative maintenance endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates the admin HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Routes mounts the admin endpoints on the given router. The caller is
// responsible for wrapping the router in authentication middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/recalculate/{address}", apphttp.HandleError(h.recalculateUser))
	r.Post("/recalculate-all", apphttp.HandleError(h.recalculateAll))
	r.Post("/fix-points", apphttp.HandleError(h.fixPoints))
	r.Post("/points/batch", apphttp.HandleError(h.batchAdjust))
	r.Post("/reset", apphttp.HandleError(h.reset))
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (h *Handler) recalculateUser(w http.ResponseWriter, r *http.Request) error {
	res, err := h.svc.RecalculateUser(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: res})
}

func (h *Handler) recalculateAll(w http.ResponseWriter, r *http.Request) error {
	report, err := h.svc.RecalculateAll(r.Context())
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: report})
}

func (h *Handler) fixPoints(w http.ResponseWriter, r *http.Request) error {
	report, err := h.svc.FixPoints(r.Context())
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: report})
}

type batchAdjustRequest struct {
	Adjustments []Adjustment `json:"adjustments" validate:"required,dive"`
}

func (h *Handler) batchAdjust(w http.ResponseWriter, r *http.Request) error {
	var req batchAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequestError(err, "invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return apperrors.BadRequestError(err, "missing required fields")
	}

	report, err := h.svc.BatchAdjust(r.Context(), req.Adjustments)
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: report})
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) error {
	report, err := h.svc.Reset(r.Context())
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: report})
}
