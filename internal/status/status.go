// Package status collects resource usage for the supervised child process.
package status

import (
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
)

// ChildStatus is a point-in-time snapshot of the child process.
type ChildStatus struct {
	Pid           int     `json:"pid"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryRSS     uint64  `json:"memory_rss_bytes"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Collect gathers CPU, memory, and uptime for the given pid. Individual probe
// failures leave the corresponding field zero rather than failing the whole
// snapshot; the process itself must exist.
func Collect(pid int) (*ChildStatus, error) {
	proc, err := ps.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	st := &ChildStatus{Pid: pid}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		st.MemoryRSS = mem.RSS
	}
	if created, err := proc.CreateTime(); err == nil {
		st.UptimeSeconds = time.Since(time.UnixMilli(created)).Seconds()
	}
	return st, nil
}
