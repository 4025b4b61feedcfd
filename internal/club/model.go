package club

import "github.com/bookclub/bookclub/internal/domain"

// Details is a club as seen by one requester.
type Details struct {
	Club        *domain.Club
	MemberCount int
	// Role is the requester's role, RoleNone for outsiders.
	Role domain.Role
}

// ToDetailsResponse converts Details to a ClubResponse DTO
func ToDetailsResponse(d *Details) *ClubResponse {
	resp := ToResponse(d.Club)
	resp.MemberCount = d.MemberCount
	resp.YourRole = d.Role.String()
	return resp
}
