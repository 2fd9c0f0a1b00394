package services

import "time"

// MatchingOptions tune the pool and the matchmaker.
type MatchingOptions struct {
	PoolTTL          time.Duration
	MaxRadiusKm      float64
	TieEpsilonKm     float64
	AnonymousWindow  time.Duration
	LocationDecimals int
	SweepBatchSize   int
}

// LifecycleOptions tune match expiry, retention and messaging.
type LifecycleOptions struct {
	GraceWindow      time.Duration
	RetentionWindow  time.Duration
	PurgeBatchSize   int
	ArchiveBatchSize int
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
}

func DefaultMatchingOptions() MatchingOptions {
	return MatchingOptions{
		PoolTTL:          30 * time.Second,
		MaxRadiusKm:      1000,
		TieEpsilonKm:     1,
		AnonymousWindow:  15 * time.Minute,
		LocationDecimals: 4,
		SweepBatchSize:   500,
	}
}

func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		GraceWindow:      24 * time.Hour,
		RetentionWindow:  30 * 24 * time.Hour,
		PurgeBatchSize:   100,
		ArchiveBatchSize: 500,
		MaxContentLength: 1000,
		DefaultPageSize:  50,
		MaxPageSize:      200,
	}
}
