package jobs

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/internal/comments"
)

type fakeCommentSource struct {
	comment *comments.Comment
	err     error
}

func (f *fakeCommentSource) Get(ctx context.Context, id int64) (*comments.Comment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.comment, nil
}

type fakeDirectory struct {
	emails []string
	err    error
}

func (f *fakeDirectory) ModeratorEmails(ctx context.Context) ([]string, error) {
	return f.emails, f.err
}

type recordingEnqueuer struct {
	sent []SendEmailPayload
	err  error
}

func (r *recordingEnqueuer) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.sent = append(r.sent, payload)
	return &asynq.TaskInfo{}, nil
}

func pendingComment() *comments.Comment {
	return &comments.Comment{
		ID:           31,
		ArticleID:    7,
		ArticleTitle: "Shipping Plume 1.0",
		ArticleSlug:  "shipping-plume-1-0",
		AuthorName:   "Dana",
		AuthorEmail:  "dana@example.net",
		Body:         "Congratulations on the release!",
		Status:       comments.StatusPending,
	}
}

func notifyTask(t *testing.T, commentID int64) *asynq.Task {
	t.Helper()
	task, err := NewCommentNotifyTask(CommentNotifyPayload{CommentID: commentID})
	require.NoError(t, err)
	return task
}

func TestCommentNotifyFansOutToModerators(t *testing.T) {
	queue := &recordingEnqueuer{}
	job := NewCommentNotifyJob(
		&fakeCommentSource{comment: pendingComment()},
		&fakeDirectory{emails: []string{"erin@example.com", "morgan@example.com"}},
		queue,
		discardLogger(),
		nil,
		"https://blog.example.com/",
	)

	err := job.Handle(context.Background(), notifyTask(t, 31))
	require.NoError(t, err)
	require.Len(t, queue.sent, 2)
	require.Equal(t, "erin@example.com", queue.sent[0].To)
	require.Contains(t, queue.sent[0].Subject, "Shipping Plume 1.0")
	require.Contains(t, queue.sent[0].Body, "Dana")
	require.Contains(t, queue.sent[0].Body, "https://blog.example.com/admin/comments")
}

func TestCommentNotifySkipsAlreadyModerated(t *testing.T) {
	comment := pendingComment()
	comment.Status = comments.StatusApproved
	queue := &recordingEnqueuer{}
	job := NewCommentNotifyJob(&fakeCommentSource{comment: comment}, &fakeDirectory{emails: []string{"erin@example.com"}}, queue, discardLogger(), nil, "https://blog.example.com")

	err := job.Handle(context.Background(), notifyTask(t, 31))
	require.NoError(t, err)
	require.Empty(t, queue.sent)
}

func TestCommentNotifyNoModeratorsIsNotAFailure(t *testing.T) {
	queue := &recordingEnqueuer{}
	job := NewCommentNotifyJob(&fakeCommentSource{comment: pendingComment()}, &fakeDirectory{}, queue, discardLogger(), nil, "https://blog.example.com")

	err := job.Handle(context.Background(), notifyTask(t, 31))
	require.NoError(t, err)
	require.Empty(t, queue.sent)
}

func TestCommentNotifyMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewCommentNotifyJob(&fakeCommentSource{comment: pendingComment()}, &fakeDirectory{}, &recordingEnqueuer{}, discardLogger(), nil, "")

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeCommentNotify, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
