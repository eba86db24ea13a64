package config

import "time"

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type SecurityConfig interface {
	GetTrackSiteVisit() bool
	GetMaxVisitLimit() int64
	GetRestriction() time.Duration
	GetRateLimitStore() string
}

var _ SecurityConfig = EnvVars{}

func (e EnvVars) GetTrackSiteVisit() bool {
	return e.TrackSiteVisit
}

func (e EnvVars) GetMaxVisitLimit() int64 {
	if e.MaxVisitLimit <= 0 {
		return 100
	}
	return e.MaxVisitLimit
}

func (e EnvVars) GetRestriction() time.Duration {
	if e.RestrictionMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(e.RestrictionMinutes) * time.Minute
}

func (e EnvVars) GetRateLimitStore() string {
	if e.RateLimitStore == "" {
		return RateLimitStoreMemory
	}
	return e.RateLimitStore
}
