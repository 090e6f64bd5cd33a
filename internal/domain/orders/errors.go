package orders

import "errors"

var (
	ErrNotFound            = errors.New("order not found")
	ErrInvalidStatusChange = errors.New("invalid order status change")
)
