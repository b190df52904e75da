package runner

import (
	"time"
)

type Config struct {
	// Target host, scheme included, e.g. http://localhost:3013
	Host     string
	BasePath string

	Users       int
	Duration    time.Duration // 0 runs until stopped or drained
	MaxRequests int64         // 0 means no limit
	MaxRPS      float64       // global cap across actors, 0 disables
	Timeout     time.Duration
	Insecure    bool

	// Seed derives each actor's random source; empty means time-based.
	Seed string
}

// Result is one completed request.
type Result struct {
	TimeStamp time.Time
	Name      string
	Method    string
	URL       string
	Elapsed   time.Duration // until the body was fully read
	Status    int
	Success   bool
	Bytes     int64
	ActorID   string
	Err       error
}

type StopReason string

const (
	StopNone        StopReason = ""
	StopDuration    StopReason = "duration elapsed"
	StopMaxRequests StopReason = "max requests reached"
	StopDrained     StopReason = "seed queue drained"
	StopCancelled   StopReason = "cancelled"
)
