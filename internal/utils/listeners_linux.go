//go:build linux

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// findSocketInodes collects the socket inodes bound to the port in LISTEN
// state, from /proc/net/tcp and tcp6.
func findSocketInodes(port int) map[string]bool {
	inodes := make(map[string]bool)

	files := []string{"/proc/net/tcp", "/proc/net/tcp6"}
	targetHex := fmt.Sprintf("%04X", port)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}

		lines := strings.Split(string(data), "\n")
		for _, line := range lines[1:] {
			fields := strings.Fields(line)
			if len(fields) < 10 {
				continue
			}
			// st 0A == LISTEN
			if fields[3] != "0A" {
				continue
			}
			localAddr := fields[1]
			parts := strings.Split(localAddr, ":")
			if len(parts) != 2 {
				continue
			}
			if parts[1] == targetHex {
				inodes[fields[9]] = true
			}
		}
	}
	return inodes
}

/**
 * Get PIDs of processes listening on a TCP port (Linux implementation)
 * @param {int} port - TCP port number
 * @returns {[]int} PIDs owning a LISTEN socket on the port, may be empty
 * @description
 * - Maps LISTEN socket inodes from /proc/net/tcp{,6} to owning processes
 *   by scanning /proc/<pid>/fd symlinks
 */
func ListenPids(port int) []int {
	inodes := findSocketInodes(port)
	if len(inodes) == 0 {
		return nil
	}

	pidSet := make(map[int]bool)
	procEntries, _ := os.ReadDir("/proc")
	for _, entry := range procEntries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if strings.HasPrefix(link, "socket:[") {
				inode := strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]")
				if inodes[inode] {
					pidSet[pid] = true
				}
			}
		}
	}

	var pids []int
	for pid := range pidSet {
		pids = append(pids, pid)
	}
	return pids
}

// ProcessCwd returns the working directory of a process.
func ProcessCwd(pid int) (string, error) {
	return os.Readlink(filepath.Join("/proc", strconv.Itoa(pid), "cwd"))
}
