//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readProcStatus samples /proc/<pid>/status for VmRSS and /proc/<pid>/stat
// for utime+stime, giving a live snapshot without a process-metrics
// dependency.
func readProcStatus(pid int) (memKB uint64, cpuPct float64, err error) {
	statusPath := fmt.Sprintf("/proc/%d/status", pid)
	b, err := os.ReadFile(statusPath)
	if err != nil {
		return 0, 0, err
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				v, convErr := strconv.ParseUint(fields[1], 10, 64)
				if convErr == nil {
					memKB = v
				}
			}
			break
		}
	}

	statPath := fmt.Sprintf("/proc/%d/stat", pid)
	statBytes, err := os.ReadFile(statPath)
	if err != nil {
		return memKB, 0, err
	}
	// Fields after the closing paren of comm are space-separated; utime
	// and stime are fields 14 and 15 (1-indexed) of the whole record.
	closeParen := strings.LastIndexByte(string(statBytes), ')')
	if closeParen < 0 {
		return memKB, 0, nil
	}
	rest := strings.Fields(string(statBytes)[closeParen+1:])
	if len(rest) < 13 {
		return memKB, 0, nil
	}
	utime, _ := strconv.ParseFloat(rest[11], 64)
	stime, _ := strconv.ParseFloat(rest[12], 64)
	const clockTicksPerSec = 100.0
	cpuPct = (utime + stime) / clockTicksPerSec
	return memKB, cpuPct, nil
}
