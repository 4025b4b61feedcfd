package neo4jstore

import (
	"errors"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	domainerrors "github.com/bookclub/bookclub/internal/errors"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// uniqueKeys maps the uniqueness constraints created at Open to the domain
// error a violation of each one means. Neo4j names the label and property in
// the violation message.
var uniqueKeys = []struct {
	label    string
	property string
	err      *domainerrors.Error
}{
	{"User", "email", domainerrors.ErrEmailTaken},
	{"BookClub", "slug", domainerrors.ErrSlugTaken},
	{"Membership", "user_email", domainerrors.ErrAlreadyMember},
	{"Pick", "open_in", domainerrors.ErrPickAlreadyOpen},
}

// storeErr converts a driver error into a domain error, passing domain
// errors through unchanged.
func storeErr(err error, msg string) error {
	if err == nil {
		return nil
	}

	var domainErr *domainerrors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == constraintViolation {
		for _, k := range uniqueKeys {
			if strings.Contains(neoErr.Msg, "label `"+k.label+"`") && strings.Contains(neoErr.Msg, "`"+k.property+"`") {
				return k.err.WithCause(err)
			}
		}
		return domainerrors.Wrap(err, domainerrors.CodeConflict, msg)
	}
	if neo4j.IsRetryable(err) {
		return domainerrors.StoreFailure(err, msg+": transient failure, retry")
	}
	return domainerrors.StoreFailure(err, msg)
}
