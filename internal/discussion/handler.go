package discussion

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/validation"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for club discussions
type Handler struct {
	service  *Service
	validate *validation.Validator
	render   *Renderer
}

// NewHandler creates a new discussion handler
func NewHandler(service *Service, validate *validation.Validator, render *Renderer) *Handler {
	return &Handler{service: service, validate: validate, render: render}
}

// Routes returns the router for discussion endpoints. It is mounted under
// /clubs/{slug}/discussions.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/", h.Create)
		r.Post("/{id}/replies", h.Reply)
		r.Delete("/{id}", h.Archive)
	})

	return r
}

// Create handles POST /clubs/{slug}/discussions
// @Summary      Start a discussion
// @Tags         discussions
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        request body CreateDiscussionRequest true "Discussion"
// @Success      201 {object} response.APIResponse{data=DiscussionResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug}/discussions [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req CreateDiscussionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	d, err := h.service.CreateDiscussion(r.Context(), chi.URLParam(r, "slug"), actor, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, toDiscussionResponse(d, h.render))
}

// List handles GET /clubs/{slug}/discussions
// @Summary      List discussions
// @Tags         discussions
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]DiscussionResponse}
// @Router       /clubs/{slug}/discussions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())
	page, perPage := response.PageParams(r)

	discussions, total, err := h.service.ListDiscussions(r.Context(), chi.URLParam(r, "slug"), requester, page, perPage)
	if err != nil {
		response.FromError(w, err)
		return
	}

	discussionResponses := make([]*DiscussionResponse, len(discussions))
	for i, d := range discussions {
		discussionResponses[i] = toDiscussionResponse(d, h.render)
	}

	response.JSONWithMeta(w, http.StatusOK, discussionResponses, response.NewMeta(page, perPage, total))
}

// Get handles GET /clubs/{slug}/discussions/{id}
// @Summary      Get a discussion with its replies
// @Tags         discussions
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        id path string true "Discussion ID"
// @Success      200 {object} response.APIResponse{data=DiscussionResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /clubs/{slug}/discussions/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())

	thread, err := h.service.GetDiscussion(r.Context(), chi.URLParam(r, "slug"), requester, chi.URLParam(r, "id"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, toThreadResponse(thread, h.render))
}

// Reply handles POST /clubs/{slug}/discussions/{id}/replies
// @Summary      Reply to a discussion or reply
// @Tags         discussions
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        id path string true "Discussion or reply ID"
// @Param        request body ReplyRequest true "Reply"
// @Success      201 {object} response.APIResponse{data=ReplyResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /clubs/{slug}/discussions/{id}/replies [post]
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req ReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	reply, err := h.service.Reply(r.Context(), chi.URLParam(r, "slug"), actor, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, toReplyResponse(reply, h.render))
}

// Archive handles DELETE /clubs/{slug}/discussions/{id}
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.Archive(r.Context(), chi.URLParam(r, "slug"), actor, chi.URLParam(r, "id")); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Archived successfully"})
}
