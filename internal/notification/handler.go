package notification

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookclub/bookclub/internal/domain"
	"github.com/bookclub/bookclub/pkg/middleware"
	"github.com/bookclub/bookclub/pkg/response"
)

// Handler handles HTTP requests for notification operations
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for notification endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireUser)

	r.Get("/", h.List)
	r.Get("/unread-count", h.GetUnreadCount)
	r.Post("/{id}/read", h.MarkAsRead)
	r.Post("/read-all", h.MarkAllAsRead)

	return r
}

// NotificationResponse represents the response for a notification
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	IsRead    bool                    `json:"is_read"`
	ClubSlug  string                  `json:"club_slug,omitempty"`
	EntityID  string                  `json:"entity_id,omitempty"`
	CreatedAt string                  `json:"created_at"`
}

func toResponse(n *domain.Notification) *NotificationResponse {
	return &NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		IsRead:    n.IsRead,
		ClubSlug:  n.ClubSlug,
		EntityID:  n.EntityID,
		CreatedAt: n.Created.Format("2006-01-02T15:04:05Z"),
	}
}

// List handles GET /notifications
// @Summary      List my notifications
// @Tags         notifications
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Param        unread_only query bool false "Only unread notifications"
// @Success      200 {object} response.APIResponse{data=[]NotificationResponse}
// @Router       /notifications [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	email, _ := middleware.GetUserEmail(r.Context())
	page, perPage := response.PageParams(r)
	unreadOnly := r.URL.Query().Get("unread_only") == "true"

	notifications, total, err := h.service.ListByRecipient(r.Context(), email, page, perPage, unreadOnly)
	if err != nil {
		response.FromError(w, err)
		return
	}

	notificationResponses := make([]*NotificationResponse, len(notifications))
	for i, n := range notifications {
		notificationResponses[i] = toResponse(n)
	}

	response.JSONWithMeta(w, http.StatusOK, notificationResponses, response.NewMeta(page, perPage, total))
}

// GetUnreadCount handles GET /notifications/unread-count
func (h *Handler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	email, _ := middleware.GetUserEmail(r.Context())

	count, err := h.service.GetUnreadCount(r.Context(), email)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

// MarkAsRead handles POST /notifications/{id}/read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	email, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.MarkAsRead(r.Context(), chi.URLParam(r, "id"), email); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// MarkAllAsRead handles POST /notifications/read-all
func (h *Handler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	email, _ := middleware.GetUserEmail(r.Context())

	if err := h.service.MarkAllAsRead(r.Context(), email); err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"message": "All notifications marked as read"})
}
