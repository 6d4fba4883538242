// Package hostinfo reads the host facts mchown sizes itself by: the number of
// online CPUs and the open-file limit.
package hostinfo

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/tigerand/mchown/internal/logger"
	"golang.org/x/sys/unix"
)

// OnlineCPUPath lists the CPUs the kernel has brought online.
const OnlineCPUPath = "/sys/devices/system/cpu/online"

// FilesPerThread is how many descriptors each worker is budgeted.
const FilesPerThread = 100

var ErrInvalidCPUList = errors.New("invalid cpu list")

// ParseCPUList counts the CPUs in a kernel cpu list such as "0-3,5,7-9".
func ParseCPUList(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidCPUList)
	}

	total := 0
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil || first < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCPUList, part)
		}
		last := first
		if isRange {
			last, err = strconv.Atoi(hi)
			if err != nil || last < first {
				return 0, fmt.Errorf("%w: %q", ErrInvalidCPUList, part)
			}
		}
		total += last - first + 1
	}
	return total, nil
}

// OnlineCPUs returns the number of online CPUs, falling back to
// runtime.NumCPU when the sysfs list is missing or unreadable.
func OnlineCPUs() int {
	return onlineCPUsFrom(OnlineCPUPath)
}

func onlineCPUsFrom(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Debug("reading %s: %v, using runtime cpu count", path, err)
		return runtime.NumCPU()
	}
	n, err := ParseCPUList(string(data))
	if err != nil || n < 1 {
		logger.Warn("could not parse %s: %v, using runtime cpu count", path, err)
		return runtime.NumCPU()
	}
	return n
}

// DefaultThreads is 90% of the cores, never less than one.
func DefaultThreads(cores int) int {
	return max(1, int(float64(cores)*0.9))
}

// ResolveThreads picks the pool size. A request is only honoured when it is
// positive and below the default; anything else keeps the default.
func ResolveThreads(requested, def int) int {
	if requested == 0 {
		return def
	}
	if requested > 0 && requested < def {
		return requested
	}
	logger.Warn("ignoring thread count %d, using %d", requested, def)
	return def
}

// RaiseOpenFileLimit makes sure the process may hold FilesPerThread
// descriptors per worker. The soft limit is raised first; the hard limit is
// only touched when it is too low as well, which usually needs privileges.
func RaiseOpenFileLimit(threads int) error {
	want := uint64(threads) * FilesPerThread

	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("getrlimit(RLIMIT_NOFILE): %w", err)
	}
	if rl.Cur >= want {
		return nil
	}

	rl.Cur = want
	if rl.Max < want {
		rl.Max = want
	}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return fmt.Errorf("raising RLIMIT_NOFILE to %d: %w", want, err)
	}
	logger.Debug("RLIMIT_NOFILE raised to %d", want)
	return nil
}
