package membership

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/validation"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for club membership
type Handler struct {
	service  *Service
	validate *validation.Validator
}

// NewHandler creates a new membership handler
func NewHandler(service *Service, validate *validation.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// Routes returns the router for membership endpoints. It is mounted under
// /clubs/{slug}/members.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Get("/{email}/role", h.FindRole)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Post("/", h.Add)
		r.Put("/{email}", h.UpdateRole)
		r.Delete("/{email}", h.Remove)
		r.Post("/{email}/reinstate", h.Reinstate)
	})

	return r
}

// Add handles POST /clubs/{slug}/members
// @Summary      Add member to club
// @Description  Add an existing user; they join the pick rotation at the back of the current round
// @Tags         members
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        request body AddMemberRequest true "Member to add"
// @Success      201 {object} response.APIResponse{data=MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /clubs/{slug}/members [post]
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	member, err := h.service.AddMember(r.Context(), chi.URLParam(r, "slug"), req.Email, actor, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ToResponse(member))
}

// List handles GET /clubs/{slug}/members
// @Summary      List club members
// @Tags         members
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        include_departed query bool false "Include former members (managers only)"
// @Success      200 {object} response.APIResponse{data=[]MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug}/members [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	requester, _ := middleware.GetUserEmail(r.Context())
	includeDeparted := r.URL.Query().Get("include_departed") == "true"

	members, err := h.service.ListMembers(r.Context(), chi.URLParam(r, "slug"), requester, includeDeparted)
	if err != nil {
		response.FromError(w, err)
		return
	}

	memberResponses := make([]*MemberResponse, len(members))
	for i, m := range members {
		memberResponses[i] = ToResponse(m)
	}

	response.JSON(w, http.StatusOK, memberResponses)
}

// FindRole handles GET /clubs/{slug}/members/{email}/role
// @Summary      Get a user's role in a club
// @Tags         members
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        email path string true "User email"
// @Success      200 {object} response.APIResponse{data=RoleResponse}
// @Router       /clubs/{slug}/members/{email}/role [get]
func (h *Handler) FindRole(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	role, err := h.service.FindRole(r.Context(), chi.URLParam(r, "slug"), email)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, &RoleResponse{Email: email, Role: role.String()})
}

// UpdateRole handles PUT /clubs/{slug}/members/{email}
// @Summary      Change a member's role
// @Description  Granting OWNER transfers ownership and demotes the current owner to ADMIN
// @Tags         members
// @Accept       json
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        email path string true "Member email"
// @Param        request body UpdateRoleRequest true "New role"
// @Success      200 {object} response.APIResponse{data=MemberResponse}
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug}/members/{email} [put]
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	member, err := h.service.UpdateMemberRole(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "email"), actor, req.Role)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToResponse(member))
}

// Remove handles DELETE /clubs/{slug}/members/{email}
// @Summary      Remove a member or leave a club
// @Tags         members
// @Produce      json
// @Param        slug path string true "Club slug"
// @Param        email path string true "Member email"
// @Success      200 {object} response.APIResponse
// @Failure      403 {object} response.APIResponse
// @Router       /clubs/{slug}/members/{email} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.RemoveMember(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "email"), actor); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Member removed successfully"})
}

// Reinstate handles POST /clubs/{slug}/members/{email}/reinstate
func (h *Handler) Reinstate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	member, err := h.service.ReinstateMember(r.Context(), chi.URLParam(r, "slug"), chi.URLParam(r, "email"), actor)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToResponse(member))
}
