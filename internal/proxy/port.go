package proxy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sentinelai/sentinel/internal/logging"
)

// TakeOverPort terminates whatever local process is listening on the given
// TCP port so this proxy can bind it. Errors during the scan are logged and
// ignored; the subsequent bind reports the real failure if any.
func TakeOverPort(port int) {
	inodes := listeningInodes(port)
	if len(inodes) == 0 {
		return
	}

	self := os.Getpid()
	for _, pid := range pidsHoldingInodes(inodes) {
		if pid == self {
			continue
		}
		if err := unix.Kill(pid, unix.SIGTERM); err != nil {
			logging.Op().Warn("failed to signal port holder", "pid", pid, "port", port, "error", err)
			continue
		}
		logging.Op().Info("terminated process holding listen port", "pid", pid, "port", port)
	}
	// Give the old listener a moment to release the socket.
	time.Sleep(500 * time.Millisecond)
}

// listeningInodes returns the socket inodes in LISTEN state on the port.
func listeningInodes(port int) map[string]bool {
	inodes := make(map[string]bool)
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		f, err := os.Open(table)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Scan() // header
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			// local_address is field 1, st is field 3, inode is field 9.
			if len(fields) < 10 || fields[3] != "0A" {
				continue
			}
			parts := strings.Split(fields[1], ":")
			if len(parts) != 2 {
				continue
			}
			p, err := strconv.ParseInt(parts[1], 16, 32)
			if err != nil || int(p) != port {
				continue
			}
			inodes[fields[9]] = true
		}
		f.Close()
	}
	return inodes
}

// pidsHoldingInodes scans /proc/*/fd for sockets matching the inodes.
func pidsHoldingInodes(inodes map[string]bool) []int {
	var pids []int
	procs, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}

	for _, entry := range procs {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", entry.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // not ours to inspect
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			for inode := range inodes {
				if link == fmt.Sprintf("socket:[%s]", inode) {
					pids = append(pids, pid)
				}
			}
		}
	}
	return pids
}
