package membership

import "github.com/bookclub/bookclub/internal/domain"

// AddMemberRequest represents the request to add a member to a club
type AddMemberRequest struct {
	Email string      `json:"email" validate:"required,email"`
	Role  domain.Role `json:"role,omitempty" validate:"omitempty,role"`
}

// UpdateRoleRequest represents the request to change a member's role
type UpdateRoleRequest struct {
	Role domain.Role `json:"role" validate:"required,role"`
}

// MemberResponse represents a member in a club response
type MemberResponse struct {
	ID       string      `json:"id"`
	Email    string      `json:"email"`
	Name     string      `json:"name,omitempty"`
	Role     domain.Role `json:"role"`
	IsActive bool        `json:"is_active"`
	JoinedAt string      `json:"joined_at"`
	LeftAt   string      `json:"left_at,omitempty"`
}

// RoleResponse reports a user's live role in a club
type RoleResponse struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ToResponse converts a Membership to a MemberResponse DTO
func ToResponse(m *domain.Membership) *MemberResponse {
	resp := &MemberResponse{
		ID:       m.ID,
		Email:    m.UserEmail,
		Name:     m.UserName,
		Role:     m.Role,
		IsActive: m.IsActive,
		JoinedAt: m.Joined.Format("2006-01-02T15:04:05Z"),
	}
	if m.Departed != nil {
		resp.LeftAt = m.Departed.Format("2006-01-02T15:04:05Z")
	}
	return resp
}
