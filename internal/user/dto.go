package user

import "github.com/bookclub/bookclub/internal/domain"

// CreateUserRequest represents the request body for creating a user
type CreateUserRequest struct {
	Email         string `json:"email" validate:"required,email,max=254"`
	PreferredName string `json:"preferred_name" validate:"required,min=1,max=80"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	PreferredName *string `json:"preferred_name,omitempty" validate:"omitempty,min=1,max=80"`
}

// UserResponse represents the response for a single user
type UserResponse struct {
	Email         string  `json:"email"`
	PreferredName string  `json:"preferred_name"`
	IsActive      bool    `json:"is_active"`
	JoinedAt      string  `json:"joined_at"`
	DepartedAt    *string `json:"departed_at,omitempty"`
}

// ToResponse converts a user to a UserResponse DTO
func ToResponse(u *domain.User) *UserResponse {
	resp := &UserResponse{
		Email:         u.Email,
		PreferredName: u.PreferredName,
		IsActive:      u.IsActive,
		JoinedAt:      u.Joined.Format("2006-01-02T15:04:05Z"),
	}
	if u.Departed != nil {
		departed := u.Departed.Format("2006-01-02T15:04:05Z")
		resp.DepartedAt = &departed
	}
	return resp
}
