package domain

import "time"

// Book is the catalog entry a pick refers to. ExternalID is the stable
// identifier supplied by the external catalog lookup.
type Book struct {
	ExternalID string   `json:"external_id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors,omitempty"`
	CoverURL   string   `json:"cover_url,omitempty"`
}

// Pick records one turn's book selection.
type Pick struct {
	ID           string     `json:"id"`
	ClubSlug     string     `json:"club_slug"`
	MembershipID string     `json:"membership_id"`
	PickerEmail  string     `json:"picker_email"`
	Book         Book       `json:"book"`
	PickedOn     time.Time  `json:"picked_on"`
	CompletedOn  *time.Time `json:"completed_on,omitempty"`
	IsActive     bool       `json:"is_active"`
}

// Complete closes the pick.
func (p *Pick) Complete(at time.Time) {
	p.IsActive = false
	p.CompletedOn = &at
}

// RotationState is the state of a club's pick rotation.
type RotationState string

const (
	StateNoMembers   RotationState = "NO_MEMBERS"
	StateReady       RotationState = "READY"
	StatePickPending RotationState = "PICK_PENDING"
)
