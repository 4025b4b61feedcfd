package rotation

import (
	"github.com/bookclub/bookclub/internal/domain"
	"github.com/bookclub/bookclub/internal/membership"
)

// PickRequest names the book chosen for the current turn. ExternalID is the
// catalog identifier supplied by the book search the client used.
type PickRequest struct {
	ExternalID string   `json:"external_id" validate:"required,max=200"`
	Title      string   `json:"title" validate:"required,max=500"`
	Authors    []string `json:"authors,omitempty" validate:"omitempty,max=20,dive,max=200"`
	CoverURL   string   `json:"cover_url,omitempty" validate:"omitempty,url"`
}

// Book converts the request into a catalog entry.
func (r *PickRequest) Book() domain.Book {
	return domain.Book{
		ExternalID: r.ExternalID,
		Title:      r.Title,
		Authors:    r.Authors,
		CoverURL:   r.CoverURL,
	}
}

// AdjustOrderRequest replaces the rotation order. It must list every active
// member exactly once.
type AdjustOrderRequest struct {
	Emails []string `json:"emails" validate:"required,min=1,dive,required,email"`
}

// BookResponse represents a book in a pick response
type BookResponse struct {
	ExternalID string   `json:"external_id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	CoverURL   string   `json:"cover_url,omitempty"`
}

// PickResponse represents a pick
type PickResponse struct {
	ID          string       `json:"id"`
	PickerEmail string       `json:"picker_email"`
	Book        BookResponse `json:"book"`
	PickedOn    string       `json:"picked_on"`
	CompletedOn string       `json:"completed_on,omitempty"`
	IsOpen      bool         `json:"is_open"`
}

// StatusResponse represents the rotation state of a club
type StatusResponse struct {
	State         domain.RotationState         `json:"state"`
	CurrentPicker *membership.MemberResponse   `json:"current_picker,omitempty"`
	Order         []*membership.MemberResponse `json:"order"`
	OpenPick      *PickResponse                `json:"open_pick,omitempty"`
}

// ToPickResponse converts a Pick to a PickResponse DTO
func ToPickResponse(p *domain.Pick) *PickResponse {
	resp := &PickResponse{
		ID:          p.ID,
		PickerEmail: p.PickerEmail,
		Book: BookResponse{
			ExternalID: p.Book.ExternalID,
			Title:      p.Book.Title,
			Authors:    p.Book.Authors,
			CoverURL:   p.Book.CoverURL,
		},
		PickedOn: p.PickedOn.Format("2006-01-02T15:04:05Z"),
		IsOpen:   p.IsActive,
	}
	if p.CompletedOn != nil {
		resp.CompletedOn = p.CompletedOn.Format("2006-01-02T15:04:05Z")
	}
	return resp
}

// ToStatusResponse converts a Status to a StatusResponse DTO
func ToStatusResponse(s *Status) *StatusResponse {
	resp := &StatusResponse{
		State: s.State,
		Order: make([]*membership.MemberResponse, len(s.Order)),
	}
	for i, m := range s.Order {
		resp.Order[i] = membership.ToResponse(m)
	}
	if len(resp.Order) > 0 {
		resp.CurrentPicker = resp.Order[0]
	}
	if s.OpenPick != nil {
		resp.OpenPick = ToPickResponse(s.OpenPick)
	}
	return resp
}
