package helpers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

var ErrPortUnavailable = errors.New("port unavailable")

// EnsurePortAvailable binds host:port briefly to confirm the server can listen on it.
func EnsurePortAvailable(ctx context.Context, host string, port int) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", formatAddress(host, port))
	if err != nil {
		return fmt.Errorf("%w: port %d on host %s: %w", ErrPortUnavailable, port, host, err)
	}
	return listener.Close()
}

func formatAddress(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
