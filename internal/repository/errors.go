// Package repository holds the MySQL data access used by the session
// subsystem: the access log, the user directory and login codes.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Services translate
// it into their own outcomes.
var ErrNotFound = errors.New("not found")
