package xnet

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// SplitNodeAddr splits a subagent address of the form host:port. The address
// must contain exactly one colon and a numeric port. The host part is not
// validated and may be empty.
func SplitNodeAddr(addr string) (string, int, error) {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("address %q is not of the form host:port", addr)
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 0 || port > 65535 {
		return "", 0, fmt.Errorf("address %q has an invalid port %q", addr, parts[1])
	}
	return parts[0], port, nil
}

// DialTimeout dials addr, giving up after timeout or when ctx is done,
// whichever comes first.
func DialTimeout(ctx context.Context, proto string, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, proto, addr)
}
