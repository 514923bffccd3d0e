// Package feeder holds what the sink adapters share.
package feeder

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ConnectivityError indicates a sink that could not be reached. Nothing was
// written when it is returned.
type ConnectivityError struct {
	Sink string
	Op   string
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s unreachable during %s: %v", e.Sink, e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// Connectivity wraps err as a ConnectivityError when it looks like a
// transport failure and returns it unchanged otherwise.
func Connectivity(sink, op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTransportError(err) {
		return &ConnectivityError{Sink: sink, Op: op, Err: err}
	}
	return err
}

// IsTransportError reports whether err comes from the network layer.
func IsTransportError(err error) bool {
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.As(err, &opErr),
		errors.As(err, &dnsErr),
		errors.As(err, &netErr):
		return true
	}
	return false
}
