package realtime

import "time"

const (
	// maxFrameBytes bounds a single inbound frame.
	maxFrameBytes = 64 << 10 // 64 KiB

	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
	wsCloseGrace        = 1 * time.Second

	// heartbeatInterval is how often the registry probes connections. A
	// connection that misses one full interval is dropped on the next sweep.
	heartbeatInterval = 30 * time.Second

	// Per-connection inbound rate limit.
	rateLimitEvents = 120
	rateLimitWindow = 1 * time.Minute
)
