//go:build !linux && !darwin

package utils

import "fmt"

// ListenPids is unsupported on this platform; stale-listener cleanup and
// conflict attribution degrade to "unknown owner".
func ListenPids(port int) []int {
	return nil
}

func ProcessCwd(pid int) (string, error) {
	return "", fmt.Errorf("process cwd lookup not supported on this platform")
}
