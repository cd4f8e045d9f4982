package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique violation, optionally on
// the named constraint. Driver errors are matched on SQLSTATE; the message
// fallback covers the sqlite test database.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.AsPG(err); ok {
		if pg.Code != pkgerrors.PGUniqueViolation {
			return false
		}
		return constraintName == "" || pg.Constraint == constraintName
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsSerializationFailure reports a 40001 abort that the caller may retry.
func IsSerializationFailure(err error) bool {
	pg, ok := pkgerrors.AsPG(err)
	return ok && pg.Code == pkgerrors.PGSerializationFail
}
