package bus

import "errors"

// ErrShutdown signals cooperative termination: the bus was closed while a
// publisher or consumer was blocked. Consumers exit without alarm on it.
var ErrShutdown = errors.New("bus shut down")

// IsShutdown reports whether err is the cooperative shutdown signal.
func IsShutdown(err error) bool {
	return errors.Is(err, ErrShutdown)
}
