package rotation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/validation"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for the pick rotation
type Handler struct {
	service  *Service
	validate *validation.Validator
}

// NewHandler creates a new rotation handler
func NewHandler(service *Service, validate *validation.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// Routes returns the router for rotation endpoints. It is mounted under
// /clubs/{slug}/rotation.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Status)
	r.Get("/picks", h.History)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/advance", h.Advance)
		r.Put("/order", h.AdjustOrder)
		r.Post("/picks", h.Pick)
		r.Post("/picks/complete", h.CompletePick)
	})

	return r
}

// Status handles GET /clubs/{slug}/rotation
// @Summary      Get rotation status
// @Description  State, members in turn order starting at the current picker, and the open pick
// @Tags         rotation
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse{data=StatusResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /clubs/{slug}/rotation [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())

	status, err := h.service.Status(r.Context(), chi.URLParam(r, "slug"), requester)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToStatusResponse(status))
}

// Advance handles POST /clubs/{slug}/rotation/advance
// @Summary      Advance to the next picker
// @Tags         rotation
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse{data=StatusResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /clubs/{slug}/rotation/advance [post]
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	status, err := h.service.Advance(r.Context(), chi.URLParam(r, "slug"), actor)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToStatusResponse(status))
}

// AdjustOrder handles PUT /clubs/{slug}/rotation/order
// @Summary      Replace the rotation order
// @Description  The list must contain every active member exactly once
// @Tags         rotation
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        request body AdjustOrderRequest true "Members in turn order"
// @Success      200 {object} response.APIResponse{data=StatusResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug}/rotation/order [put]
func (h *Handler) AdjustOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req AdjustOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	status, err := h.service.AdjustOrder(r.Context(), chi.URLParam(r, "slug"), actor, req.Emails)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToStatusResponse(status))
}

// Pick handles POST /clubs/{slug}/rotation/picks
// @Summary      Pick the next book
// @Description  Only the current picker may pick, and only while no pick is open
// @Tags         rotation
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        request body PickRequest true "Book"
// @Success      201 {object} response.APIResponse{data=PickResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /clubs/{slug}/rotation/picks [post]
func (h *Handler) Pick(w http.ResponseWriter, r *http.Request) {
	picker, _ := middleware.GetUserEmail(r.Context())

	var req PickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	pick, err := h.service.Pick(r.Context(), chi.URLParam(r, "slug"), picker, req.Book())
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ToPickResponse(pick))
}

// CompletePick handles POST /clubs/{slug}/rotation/picks/complete
// @Summary      Complete the open pick
// @Description  The picker or a club manager closes the open pick, returning the club to READY
// @Tags         rotation
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse{data=PickResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /clubs/{slug}/rotation/picks/complete [post]
func (h *Handler) CompletePick(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	pick, err := h.service.CompletePick(r.Context(), chi.URLParam(r, "slug"), actor)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToPickResponse(pick))
}

// History handles GET /clubs/{slug}/rotation/picks
// @Summary      List past picks
// @Tags         rotation
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]PickResponse}
// @Router       /clubs/{slug}/rotation/picks [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())
	page, perPage := response.PageParams(r)

	picks, total, err := h.service.History(r.Context(), chi.URLParam(r, "slug"), requester, page, perPage)
	if err != nil {
		response.FromError(w, err)
		return
	}

	pickResponses := make([]*PickResponse, len(picks))
	for i, p := range picks {
		pickResponses[i] = ToPickResponse(p)
	}

	response.JSONWithMeta(w, http.StatusOK, pickResponses, response.NewMeta(page, perPage, total))
}
