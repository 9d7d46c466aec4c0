package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ProbeFunc dials address and returns how long the connection took.
type ProbeFunc func(ctx context.Context, address string, timeout time.Duration) (time.Duration, error)

// TCPProbe checks that something accepts TCP connections at address.
func TCPProbe(ctx context.Context, address string, timeout time.Duration) (time.Duration, error) {
	start := time.Now()

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	return time.Since(start), nil
}
