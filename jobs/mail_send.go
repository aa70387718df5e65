package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/plume-cms/plume/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Deliverer sends one finished message. Satisfied by *Mailer.
type Deliverer interface {
	Send(to, subject, body string) error
}

// SendEmailJob drains mail:send tasks through the SMTP mailer.
type SendEmailJob struct {
	Mail    Deliverer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewSendEmailJob wires dependencies for the mail handler.
func NewSendEmailJob(mail Deliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{Mail: mail, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mail == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.To) == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeSendEmail)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Mail.Send(payload.To, payload.Subject, payload.Body); err != nil {
		resultErr = err
		j.logger().Error("deliver mail", slog.String("to", payload.To), slog.Any("error", err))
		return resultErr
	}
	j.logger().Info("mail delivered", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return resultErr
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}

func (j *SendEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
