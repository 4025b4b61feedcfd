package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	domainerrors "github.com/bookclub/bookclub/internal/errors"
)

func TestStoreErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate email", &pq.Error{Code: uniqueViolation, Constraint: "users_pkey"}, domainerrors.ErrEmailTaken},
		{"duplicate slug", &pq.Error{Code: uniqueViolation, Constraint: "clubs_pkey"}, domainerrors.ErrSlugTaken},
		{"duplicate membership", &pq.Error{Code: uniqueViolation, Constraint: "memberships_club_user_key"}, domainerrors.ErrAlreadyMember},
		{"second open pick", &pq.Error{Code: uniqueViolation, Constraint: "picks_one_open_per_club"}, domainerrors.ErrPickAlreadyOpen},
		{"other unique", &pq.Error{Code: uniqueViolation, Constraint: "books_pkey"}, domainerrors.ErrConflict},
		{"foreign key", &pq.Error{Code: foreignKeyViolation}, domainerrors.ErrNotFound},
		{"serialization", &pq.Error{Code: serializationFail}, domainerrors.ErrStoreFailure},
		{"wrapped driver error", fmt.Errorf("exec: %w", &pq.Error{Code: "08006"}), domainerrors.ErrStoreFailure},
		{"no rows", sql.ErrNoRows, domainerrors.ErrNotFound},
		{"connection gone", context.DeadlineExceeded, domainerrors.ErrStoreFailure},
		{"domain error passes through", domainerrors.ErrNotYourTurn, domainerrors.ErrNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, storeErr(tt.err, "op"), tt.want)
		})
	}

	assert.NoError(t, storeErr(nil, "op"))
	assert.True(t, domainerrors.Retryable(storeErr(context.DeadlineExceeded, "op")))
	assert.True(t, isForeignKeyViolation(&pq.Error{Code: foreignKeyViolation}))
	assert.False(t, isForeignKeyViolation(&pq.Error{Code: uniqueViolation}))
}
