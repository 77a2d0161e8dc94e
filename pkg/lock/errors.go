package lock

import "errors"

var ErrBackendUnavailable = errors.New("lock: backend unavailable")
