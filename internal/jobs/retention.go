package jobs

import (
	"context"
	"log/slog"
	"time"

	"codedox/internal/config"
	"codedox/internal/metrics"
	"codedox/internal/store"
)

// RetentionStats captures the number of records deleted by TTL cleanup.
type RetentionStats struct {
	DocumentsDeleted int64
	JobsDeleted      int64
}

// CleanupExpiredData deletes old terminal jobs and documents based on
// retention settings so storage does not grow without bound.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, st *store.Store, log *slog.Logger) RetentionStats {
	now := time.Now().UTC()
	stats := RetentionStats{}

	if cfg.Retention.DocumentDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Retention.DocumentDays)
		if n, err := st.DeleteExpiredDocuments(ctx, cutoff); err == nil {
			stats.DocumentsDeleted = n
			metrics.RecordRetentionDocuments(n)
		} else if log != nil {
			log.Warn("retention: delete expired documents failed", "error", err)
		}
	}

	if cfg.Retention.JobDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Retention.JobDays)
		if n, err := st.DeleteExpiredJobs(ctx, cutoff); err == nil {
			stats.JobsDeleted = n
			metrics.RecordRetentionJobs("crawl", n)
		} else if log != nil {
			log.Warn("retention: delete expired jobs failed", "error", err)
		}
	}

	if log != nil && (stats.DocumentsDeleted > 0 || stats.JobsDeleted > 0) {
		log.Info("retention cleanup", "documentsDeleted", stats.DocumentsDeleted, "jobsDeleted", stats.JobsDeleted)
	}

	return stats
}
