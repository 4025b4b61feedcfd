package user

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/validation"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for user operations
type Handler struct {
	service  *Service
	validate *validation.Validator
}

// NewHandler creates a new user handler with service dependency injected
func NewHandler(service *Service, validate *validation.Validator) *Handler {
	return &Handler{service: service, validate: validate}
}

// Routes returns the router for user endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{email}", h.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Put("/{email}", h.Update)
		r.Delete("/{email}", h.Deactivate)
	})

	return r
}

// Create handles POST /users
// @Summary      Create a new user
// @Description  Register a user keyed by email
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        request body CreateUserRequest true "User creation request"
// @Success      201 {object} response.APIResponse{data=UserResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /users [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	user, err := h.service.Create(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, ToResponse(user))
}

// Get handles GET /users/{email}
// @Summary      Get user by email
// @Tags         users
// @Produce      json
// @Param        email path string true "User email"
// @Success      200 {object} response.APIResponse{data=UserResponse}
// @Failure      404 {object} response.APIResponse
// @Router       /users/{email} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToResponse(user))
}

// List handles GET /users
// @Summary      List all users
// @Description  Get a paginated list of all users
// @Tags         users
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]UserResponse}
// @Router       /users [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := response.PageParams(r)

	users, total, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		response.FromError(w, err)
		return
	}

	userResponses := make([]*UserResponse, len(users))
	for i, user := range users {
		userResponses[i] = ToResponse(user)
	}

	response.JSONWithMeta(w, http.StatusOK, userResponses, response.NewMeta(page, perPage, total))
}

// Update handles PUT /users/{email}
// @Summary      Update a user
// @Description  Update the caller's preferred name
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        email path string true "User email"
// @Param        request body UpdateUserRequest true "User update request"
// @Success      200 {object} response.APIResponse{data=UserResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Router       /users/{email} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if err := h.validate.Validate(&req); err != nil {
		response.FromError(w, err)
		return
	}

	user, err := h.service.Update(r.Context(), chi.URLParam(r, "email"), actor, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, ToResponse(user))
}

// Deactivate handles DELETE /users/{email}
// @Summary      Deactivate a user
// @Description  Soft-delete the caller's account; fails while they belong to a club
// @Tags         users
// @Produce      json
// @Param        email path string true "User email"
// @Success      200 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /users/{email} [delete]
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "email"), actor); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "User deactivated successfully"})
}
