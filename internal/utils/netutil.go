package utils

import (
	"fmt"
	"net"
	"time"
)

// CheckPortOpen reports whether something accepts TCP connections on the
// loopback port.
func CheckPortOpen(port int) bool {
	timeout := 250 * time.Millisecond
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitPortClosed polls until nothing is listening on the port or the deadline
// passes. A subsequent bind can still race the OS teardown on some platforms,
// so callers treat this as best effort.
func WaitPortClosed(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !CheckPortOpen(port) {
			return true
		}
		time.Sleep(250 * time.Millisecond)
	}
	return !CheckPortOpen(port)
}
