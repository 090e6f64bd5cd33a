package catalog

import "errors"

var (
	ErrNotFound      = errors.New("catalog entry not found")
	ErrDuplicateCode = errors.New("code already in use")
)
