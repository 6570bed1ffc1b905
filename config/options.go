package config

import "time"

var (
	MediaIDRequestTimeout     = 5 * time.Second
	PlaybackKeyRequestTimeout = 5 * time.Second
	SearchRequestTimeout      = 5 * time.Second
	ShutdownGracePeriod       = 5 * time.Second
)
