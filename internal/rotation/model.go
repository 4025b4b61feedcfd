package rotation

import "github.com/bookclub/bookclub/internal/domain"

// Status is a snapshot of a club's rotation.
type Status struct {
	State domain.RotationState
	// Order lists active members starting at the current picker.
	Order    []*domain.Membership
	OpenPick *domain.Pick
}

// CurrentPicker returns the member whose turn it is, or nil.
func (s *Status) CurrentPicker() *domain.Membership {
	if len(s.Order) == 0 {
		return nil
	}
	return s.Order[0]
}
