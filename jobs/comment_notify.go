package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/comments"
	jobmetrics "github.com/plume-cms/plume/internal/jobs"
)

// CommentSource loads the comment named by the task payload.
type CommentSource interface {
	Get(ctx context.Context, id int64) (*comments.Comment, error)
}

// ModeratorDirectory resolves who should hear about pending comments.
type ModeratorDirectory interface {
	ModeratorEmails(ctx context.Context) ([]string, error)
}

// MailEnqueuer hands finished messages to the mail queue.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// CommentNotifyJob fans a pending comment out to every active moderator.
// It re-reads the comment first: one that was already moderated between
// enqueue and execution is dropped silently.
type CommentNotifyJob struct {
	Comments   CommentSource
	Moderators ModeratorDirectory
	Queue      MailEnqueuer
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	AdminURL   string
}

// NewCommentNotifyJob wires dependencies for the notification handler.
func NewCommentNotifyJob(comments CommentSource, moderators ModeratorDirectory, queue MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics, adminURL string) *CommentNotifyJob {
	return &CommentNotifyJob{
		Comments:   comments,
		Moderators: moderators,
		Queue:      queue,
		Logger:     logger,
		Metrics:    metrics,
		AdminURL:   adminURL,
	}
}

// Handle processes TaskTypeCommentNotify tasks.
func (j *CommentNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Comments == nil || j.Moderators == nil || j.Queue == nil {
		return errors.New("comment notify: handler not configured")
	}
	var payload CommentNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.CommentID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeCommentNotify)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("comment_id", payload.CommentID))

	comment, err := j.Comments.Get(ctx, payload.CommentID)
	if err != nil {
		resultErr = err
		logger.Error("load comment", slog.Any("error", err))
		return resultErr
	}
	if comment.Status != comments.StatusPending {
		logger.Info("comment already moderated, skipping notification", slog.String("status", string(comment.Status)))
		return resultErr
	}

	recipients, err := j.Moderators.ModeratorEmails(ctx)
	if err != nil {
		resultErr = err
		logger.Error("resolve moderators", slog.Any("error", err))
		return resultErr
	}
	if len(recipients) == 0 {
		logger.Warn("no active moderators to notify")
		return resultErr
	}

	subject := fmt.Sprintf("New comment awaiting review on %q", comment.ArticleTitle)
	body := j.composeBody(comment)
	for _, to := range recipients {
		if _, err := j.Queue.EnqueueSendEmail(ctx, SendEmailPayload{To: to, Subject: subject, Body: body}); err != nil {
			resultErr = err
			logger.Error("enqueue mail", slog.String("to", to), slog.Any("error", err))
			return resultErr
		}
	}
	logger.Info("moderators notified", slog.Int("recipients", len(recipients)))
	return resultErr
}

func (j *CommentNotifyJob) composeBody(comment *comments.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <%s> commented on %q:\n\n", comment.AuthorName, comment.AuthorEmail, comment.ArticleTitle)
	b.WriteString(comment.Body)
	b.WriteString("\n\n")
	queueURL := strings.TrimRight(j.AdminURL, "/") + "/admin/comments"
	fmt.Fprintf(&b, "Review it in the moderation queue: %s\n", queueURL)
	return b.String()
}

func (j *CommentNotifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeCommentNotify))
	}
	return slog.Default().With(slog.String("job", TaskTypeCommentNotify))
}

func (j *CommentNotifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// PGModeratorDirectory resolves moderators from the permission graph at
// send time rather than caching the set at startup.
type PGModeratorDirectory struct {
	Pool *pgxpool.Pool
}

// ModeratorEmails returns the distinct emails of active users holding
// comment_moderate.
func (d *PGModeratorDirectory) ModeratorEmails(ctx context.Context) ([]string, error) {
	if d == nil || d.Pool == nil {
		return nil, errors.New("moderator directory: pool not configured")
	}
	rows, err := d.Pool.Query(ctx, `
		SELECT DISTINCT u.email
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE p.name = 'comment_moderate' AND u.is_active
		ORDER BY u.email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	emails := make([]string, 0)
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emails, nil
}
