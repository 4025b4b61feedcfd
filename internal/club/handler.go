package club

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/validation"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for club operations
type Handler struct {
	service  *Service
	validate *validation.Validator
}

// NewHandler creates a new club handler
func NewHandler(service *Service, validate *validation.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// Routes returns the router for club endpoints. Feature routers scoped to one
// club (members, rotation, discussions) are mounted by the caller under
// /{slug}.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the club endpoints to r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{slug}", h.Get)
	r.Get("/{slug}/exists", h.Exists)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/", h.Create)
		r.Put("/{slug}", h.Update)
		r.Delete("/{slug}", h.Disband)
	})
}

// Create handles POST /clubs
// @Summary      Create a new club
// @Description  The slug is derived from the name; the creator becomes OWNER and first picker
// @Tags         clubs
// @Accept       json
// @Produce      json
// @Param        request body CreateClubRequest true "Club creation request"
// @Success      201 {object} response.APIResponse{data=ClubResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /clubs [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	creator, _ := middleware.GetUserEmail(r.Context())

	var req CreateClubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	club, err := h.service.Create(r.Context(), creator, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ToResponse(club))
}

// Get handles GET /clubs/{slug}
// @Summary      Get club
// @Tags         clubs
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse{data=ClubResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /clubs/{slug} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())

	details, err := h.service.Get(r.Context(), chi.URLParam(r, "slug"), requester)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToDetailsResponse(details))
}

// Exists handles GET /clubs/{slug}/exists
// @Summary      Check whether a slug is taken
// @Tags         clubs
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse{data=ExistsResponse}
// @Router       /clubs/{slug}/exists [get]
func (h *Handler) Exists(w http.ResponseWriter, r *http.Request) {
	clubSlug := chi.URLParam(r, "slug")

	exists, err := h.service.Exists(r.Context(), clubSlug)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, &ExistsResponse{Slug: clubSlug, Exists: exists})
}

// List handles GET /clubs
// @Summary      List clubs
// @Description  Public clubs plus private clubs the caller belongs to
// @Tags         clubs
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]ClubResponse}
// @Router       /clubs [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())
	page, perPage := response.PageParams(r)

	clubs, total, err := h.service.List(r.Context(), requester, page, perPage)
	if err != nil {
		response.FromError(w, err)
		return
	}

	clubResponses := make([]*ClubResponse, len(clubs))
	for i, c := range clubs {
		clubResponses[i] = ToResponse(c)
	}

	response.JSONWithMeta(w, http.StatusOK, clubResponses, response.NewMeta(page, perPage, total))
}

// Update handles PUT /clubs/{slug}
// @Summary      Update a club
// @Tags         clubs
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        request body UpdateClubRequest true "Club update request"
// @Success      200 {object} response.APIResponse{data=ClubResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req UpdateClubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	club, err := h.service.Update(r.Context(), chi.URLParam(r, "slug"), actor, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToResponse(club))
}

// Disband handles DELETE /clubs/{slug}
// @Summary      Disband a club
// @Tags         clubs
// @Produce      json
// @Param        slug path string true "Club slug"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug} [delete]
func (h *Handler) Disband(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.Disband(r.Context(), chi.URLParam(r, "slug"), actor); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Club disbanded successfully"})
}
