package room

import "time"

// Config carries the recognized options of spec §6 that shape hub
// behavior: window sizes and TTLs for the operation log, presence, and
// chat ring.
type Config struct {
	OpLogWindow  int
	PresenceTTL  time.Duration
	OpLogTTL     time.Duration
	ChatRingSize int
	ChatTTL      time.Duration

	StoreRetryAttempts int
}

// DefaultConfig matches the defaults listed in spec §6.
func DefaultConfig() Config {
	return Config{
		OpLogWindow:        100,
		PresenceTTL:        3600 * time.Second,
		OpLogTTL:           300 * time.Second,
		ChatRingSize:       100,
		ChatTTL:            86400 * time.Second,
		StoreRetryAttempts: 3,
	}
}
