// Package repository defines the data access layer and the sentinel errors
// shared by its repositories.  Handlers translate these into HTTP statuses:
// ErrNotFound -> 404, ErrForbidden -> 403, ErrConflict -> 409 (registration
// duplicates are reported as 400, see the auth handler).
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not participate in.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a unique constraint would be violated.
var ErrConflict = errors.New("conflict")

// Registration duplicates.  Each wraps ErrConflict.
var (
	ErrUsernameExists = fmt.Errorf("username already registered: %w", ErrConflict)
	ErrEmailExists    = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrPhoneExists    = fmt.Errorf("phone already registered: %w", ErrConflict)
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// duplicateKey returns the violated unique key name when err is a MySQL
// duplicate-entry error.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	// Message shape: Duplicate entry 'x' for key 'users.uq_users_email'
	msg := me.Message
	if i := strings.LastIndex(msg, "for key '"); i >= 0 {
		key := strings.TrimSuffix(msg[i+len("for key '"):], "'")
		if j := strings.LastIndex(key, "."); j >= 0 {
			key = key[j+1:]
		}
		return key, true
	}
	return "", true
}
