package schema

import (
	"errors"
	"strings"

	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/internal/username"
)

// ClassifyError maps a user creation failure to the status reported to the requester.
func ClassifyError(err error) Status {
	if err == nil {
		return StatusSuccess
	}

	if errors.Is(err, username.ErrInvalid) || errors.Is(err, username.ErrReserved) {
		return StatusValidationError
	}

	if constraint, ok := database.UniqueViolation(err); ok {
		switch {
		case strings.Contains(constraint, "email"):
			return StatusDuplicateEmail
		case strings.Contains(constraint, "username"):
			return StatusDuplicateUsername
		}
		return StatusDatabaseError
	}

	if database.IsDatabaseError(err) {
		return StatusDatabaseError
	}
	return StatusUnknownError
}
