package postgres

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	domainerrors "github.com/bookclub/bookclub/internal/errors"
)

// Postgres error codes the adapter maps to domain errors.
const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
	serializationFail   = pq.ErrorCode("40001")
)

// storeErr converts a driver error into a domain error. Domain errors pass
// through unchanged so callbacks can return them from inside a transaction.
func storeErr(err error, msg string) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			switch pqErr.Constraint {
			case "users_pkey":
				return domainerrors.ErrEmailTaken.WithCause(err)
			case "clubs_pkey":
				return domainerrors.ErrSlugTaken.WithCause(err)
			case "memberships_club_user_key":
				return domainerrors.ErrAlreadyMember.WithCause(err)
			case "picks_one_open_per_club":
				return domainerrors.ErrPickAlreadyOpen.WithCause(err)
			}
			return domainerrors.Wrap(err, domainerrors.CodeConflict, msg)
		case foreignKeyViolation:
			return domainerrors.Wrap(err, domainerrors.CodeNotFound, msg)
		case serializationFail:
			return domainerrors.StoreFailure(err, msg+": concurrent update, retry")
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, msg)
	}
	return domainerrors.StoreFailure(err, msg)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}
