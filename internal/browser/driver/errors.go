package driver

import (
	"errors"
	"strconv"
)

var (
	// ErrUnknownDriver is returned when no driver is registered under a name
	ErrUnknownDriver = errors.New("unknown browser driver")

	// ErrTimeout is wrapped by drivers when a wait runs out of time
	ErrTimeout = errors.New("browser operation timed out")

	// ErrClosed is returned when using a browser or page that was closed
	ErrClosed = errors.New("browser closed")
)

// RemoteDebuggingFlag returns the command line flag for a debugging port
func RemoteDebuggingFlag(port int) string {
	return "--remote-debugging-port=" + strconv.Itoa(port)
}
