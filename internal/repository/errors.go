package repository

import "errors"

// ErrDuplicateKey reports a unique-constraint violation on insert or
// update. Services translate it into a field-level validation error.
var ErrDuplicateKey = errors.New("duplicate key")
