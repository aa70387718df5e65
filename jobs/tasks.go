package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeCommentNotify is the task type for moderator notifications.
	TaskTypeCommentNotify = "comments:notify"
	// TaskTypePublishDue is the scheduled task type promoting due articles.
	TaskTypePublishDue = "articles:publish_due"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// CommentNotifyPayload points at the pending comment to announce.
type CommentNotifyPayload struct {
	CommentID int64 `json:"comment_id"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewCommentNotifyTask constructs an Asynq task.
func NewCommentNotifyTask(payload CommentNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCommentNotify, data), nil
}

// NewPublishDueTask constructs the recurring publish sweep task. It carries
// no payload; the handler always sweeps everything due at execution time.
func NewPublishDueTask() *asynq.Task {
	return asynq.NewTask(TaskTypePublishDue, nil)
}
