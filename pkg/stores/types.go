package stores

import (
	"time"

	"github.com/matbridge/matbridge/pkg/engine"
)

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ListOptions filters and pages ListExecutions results.
type ListOptions struct {
	// Status filters by terminal status. Empty means all.
	Status engine.Status

	// Classification filters by classification. Empty means all.
	Classification engine.Classification

	Limit  int
	Offset int
}

// Stats summarizes the stored history.
type Stats struct {
	Total            int64
	Succeeded        int64
	Failed           int64
	Reclassified     int64
	DebugPausesSeen  int64
	DesktopAutoShown int64
}
