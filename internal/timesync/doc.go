// Package timesync converts kernel monotonic timestamps to wall-clock time.
//
// Capture events carry bpf_ktime_get_ns values. The boot time from
// /proc/stat is added to them to place events on the wall clock.
package timesync
