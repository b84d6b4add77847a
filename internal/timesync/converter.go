package timesync

import (
	"fmt"
	"time"

	"github.com/prometheus/procfs"
)

// Converter maps monotonic nanoseconds since boot to wall-clock time.
type Converter struct {
	bootTime time.Time
}

// NewConverter reads the boot time from the default /proc mount.
func NewConverter() (*Converter, error) {
	return NewConverterAt(procfs.DefaultMountPoint)
}

// NewConverterAt reads the boot time from a procfs mount.
func NewConverterAt(mountPoint string) (*Converter, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	stat, err := fs.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading boot time: %w", err)
	}
	//nolint:gosec // btime is seconds since the epoch
	return &Converter{bootTime: time.Unix(int64(stat.BootTime), 0)}, nil
}

// MonotonicToWallClock converts nanoseconds since boot to wall-clock time.
func (c *Converter) MonotonicToWallClock(monotonicNanos uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.bootTime.Add(time.Duration(monotonicNanos))
}

// BootTime returns the boot time used for conversions.
func (c *Converter) BootTime() time.Time {
	return c.bootTime
}
