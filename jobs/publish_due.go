package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/plume-cms/plume/internal/jobs"
)

// ArticleSweeper promotes scheduled articles whose publish time has passed.
type ArticleSweeper interface {
	PublishDue(ctx context.Context) ([]int64, error)
}

// PublishDueJob runs the recurring publish sweep. The cron entry fires it
// every minute; a run that finds nothing due is the common case.
type PublishDueJob struct {
	Articles ArticleSweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewPublishDueJob wires dependencies for the sweep handler.
func NewPublishDueJob(articles ArticleSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PublishDueJob {
	return &PublishDueJob{Articles: articles, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypePublishDue tasks.
func (j *PublishDueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Articles == nil {
		return errors.New("publish due: handler not configured")
	}

	tracker := j.metrics().Track(TaskTypePublishDue)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.Articles.PublishDue(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("publish sweep", slog.Any("error", err))
		return resultErr
	}
	if len(ids) > 0 {
		j.logger().Info("published due articles", slog.Int("count", len(ids)))
	}
	return resultErr
}

func (j *PublishDueJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypePublishDue))
	}
	return slog.Default().With(slog.String("job", TaskTypePublishDue))
}

func (j *PublishDueJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
