package club

import "github.com/bookclub/bookclub/internal/domain"

// CreateClubRequest represents the request to create a new club
type CreateClubRequest struct {
	Name        string           `json:"name" validate:"required,min=1,max=100"`
	Description string           `json:"description" validate:"max=2000"`
	Image       string           `json:"image,omitempty" validate:"omitempty,url"`
	Publicity   domain.Publicity `json:"publicity,omitempty" validate:"omitempty,publicity"`
}

// UpdateClubRequest represents the request to update a club. The slug never
// changes once created.
type UpdateClubRequest struct {
	Name        *string           `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description *string           `json:"description,omitempty" validate:"omitempty,max=2000"`
	Image       *string           `json:"image,omitempty" validate:"omitempty,url"`
	Publicity   *domain.Publicity `json:"publicity,omitempty" validate:"omitempty,publicity"`
}

// ClubResponse represents the response for a club
type ClubResponse struct {
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Image       string           `json:"image,omitempty"`
	Publicity   domain.Publicity `json:"publicity"`
	CreatedAt   string           `json:"created_at"`
	MemberCount int              `json:"member_count,omitempty"`
	YourRole    string           `json:"your_role,omitempty"`
}

// ExistsResponse reports whether a slug is in use
type ExistsResponse struct {
	Slug   string `json:"slug"`
	Exists bool   `json:"exists"`
}

// ToResponse converts a Club to a ClubResponse DTO
func ToResponse(c *domain.Club) *ClubResponse {
	return &ClubResponse{
		Slug:        c.Slug,
		Name:        c.Name,
		Description: c.Description,
		Image:       c.Image,
		Publicity:   c.Publicity,
		CreatedAt:   c.Created.Format("2006-01-02T15:04:05Z"),
	}
}
