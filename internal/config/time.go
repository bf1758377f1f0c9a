package config

import (
	"time"
)

const defaultHitFlushInterval = 5 * time.Second

// CalculateBetweenTime converts a timer into a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfTimer(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfTimer(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

// ProxyReloadInterval is zero when periodic proxy reloading is disabled.
func (c Config) ProxyReloadInterval() time.Duration {
	if c.Proxies.ReloadTimer.IsZero() {
		return 0
	}
	return CalculateBetweenTime(c.Proxies.ReloadTimer)
}

func (c Config) HitFlushInterval() time.Duration {
	if c.Output.Database.FlushTimer.IsZero() {
		return defaultHitFlushInterval
	}
	return CalculateBetweenTime(c.Output.Database.FlushTimer)
}
