package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apphttp "github.com/meridianswap/points-middleware/pkg/app/http"
)

// Handler exposes the leaderboard read endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates the leaderboard HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the leaderboard endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/leaderboard", apphttp.HandleError(h.page))
	r.Get("/users/{address}", apphttp.HandleError(h.profile))
	r.Get("/users/{address}/rank", apphttp.HandleError(h.rank))
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) error {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))

	res, err := h.svc.Page(r.Context(), limit, page)
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: res})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) error {
	res, err := h.svc.Profile(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{Success: true, Data: res})
}

func (h *Handler) rank(w http.ResponseWriter, r *http.Request) error {
	rank, err := h.svc.Rank(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		return err
	}
	return apphttp.RespondJSON(w, http.StatusOK, &successResponse{
		Success: true,
		Data:    map[string]int{"rank": rank},
	})
}
