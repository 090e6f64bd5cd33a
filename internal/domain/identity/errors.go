package identity

import "errors"

var (
	ErrNotFound     = errors.New("identity record not found")
	ErrDuplicateMRN = errors.New("mrn already in use")
)
