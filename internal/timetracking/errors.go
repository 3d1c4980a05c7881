package timetracking

import "errors"

// ErrInvalidRequest marks client input the service refuses.
var ErrInvalidRequest = errors.New("invalid request")
