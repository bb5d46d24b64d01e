//go:build darwin

package utils

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

/**
 * Get PIDs of processes listening on a TCP port (Darwin implementation)
 * @param {int} port - TCP port number
 * @returns {[]int} PIDs owning a LISTEN socket on the port, may be empty
 * @description
 * - Shells out to lsof; there is no /proc equivalent on macOS
 */
func ListenPids(port int) []int {
	cmd := exec.Command("lsof", "-nP", fmt.Sprintf("-iTCP:%d", port), "-sTCP:LISTEN", "-t")
	output, err := cmd.Output()
	if err != nil {
		return nil
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(output)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// ProcessCwd returns the working directory of a process via lsof.
func ProcessCwd(pid int) (string, error) {
	cmd := exec.Command("lsof", "-a", "-p", strconv.Itoa(pid), "-d", "cwd", "-Fn")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(output), "\n") {
		if strings.HasPrefix(line, "n") {
			return strings.TrimSpace(line[1:]), nil
		}
	}
	return "", fmt.Errorf("cwd not reported for pid %d", pid)
}
