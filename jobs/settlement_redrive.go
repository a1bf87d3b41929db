package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/vela-pos/vela-pos/internal/jobs"
	"github.com/vela-pos/vela-pos/internal/sales"
)

const defaultRedriveLimit = 100

// Redriver retries failed settlement followup steps.
type Redriver interface {
	Redrive(ctx context.Context, limit int) (sales.RedriveStats, error)
}

// SettlementRedriveJob re-runs failed post-settlement steps on a schedule so
// a sale whose side effects failed eventually converges without operator
// action.
type SettlementRedriveJob struct {
	Settler Redriver
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSettlementRedriveJob initialises the re-drive handler.
func NewSettlementRedriveJob(settler Redriver, logger *slog.Logger, metrics *jobmetrics.Metrics) *SettlementRedriveJob {
	return &SettlementRedriveJob{Settler: settler, Logger: logger, Metrics: metrics}
}

// Handle executes one re-drive pass.
func (j *SettlementRedriveJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Settler == nil {
		return errors.New("settlement redrive: handler not configured")
	}
	var payload SettlementRedrivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultRedriveLimit
	}

	tracker := j.Metrics.Track(TaskSettlementRedrive)
	stats, err := j.Settler.Redrive(ctx, payload.Limit)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("settlement redrive pass failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}

	j.Metrics.AddRedriven("done", stats.Done)
	j.Metrics.AddRedriven("failed", stats.Failed)
	if j.Logger != nil && stats.Claimed > 0 {
		j.Logger.Info("settlement redrive pass",
			slog.Int("claimed", stats.Claimed),
			slog.Int("done", stats.Done),
			slog.Int("failed", stats.Failed))
	}
	return tracker.End(nil)
}
