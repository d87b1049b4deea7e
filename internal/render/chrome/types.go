package chrome

import "time"

// Status is the lifecycle state of a browser instance
type Status int32

const (
	StatusIdle Status = iota
	StatusCapturing
	StatusRestarting
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCapturing:
		return "capturing"
	case StatusRestarting:
		return "restarting"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// PoolStats is a snapshot of pool occupancy
type PoolStats struct {
	TotalInstances     int
	AvailableInstances int
	ActiveInstances    int
	TotalCaptures      int64
	TotalRestarts      int64
	Uptime             time.Duration
}
