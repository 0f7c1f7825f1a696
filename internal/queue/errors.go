package queue

import "errors"

// ErrNotInitialized is returned by queueing calls made before Initialize or
// after Teardown.
var ErrNotInitialized = errors.New("training queue not initialized")
