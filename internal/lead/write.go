package lead

import (
	"context"

	"go.uber.org/zap"
)

// UpsertOne writes l and records the outcome in stats. A failed write is
// logged and returned as a *PersistenceError; callers decide whether to stop.
func UpsertOne(ctx context.Context, store Upserter, l Lead, stats *WriteStats, logger *zap.Logger) (UpsertOutcome, error) {
	outcome, err := store.Upsert(ctx, l)
	stats.Record(outcome, err)
	if err != nil {
		perr := &PersistenceError{ExternalID: l.ExternalID, Err: err}
		if logger != nil {
			logger.Warn("lead upsert failed",
				zap.String("external_id", l.ExternalID),
				zap.String("source", string(l.Source)),
				zap.Error(err),
			)
		}
		return "", perr
	}
	return outcome, nil
}

// UpsertAll writes every lead, isolating per-record failures. It stops early
// only when ctx is done; the returned error is then the context error.
func UpsertAll(ctx context.Context, store Upserter, leads []Lead, logger *zap.Logger) (WriteStats, error) {
	var stats WriteStats
	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		// Failures are logged and counted by UpsertOne.
		_, _ = UpsertOne(ctx, store, l, &stats, logger)
	}
	return stats, nil
}
