package lock

import "errors"

// ErrLockTimeout is returned when a key cannot be locked within the timeout.
var ErrLockTimeout = errors.New("lock acquisition timeout")
