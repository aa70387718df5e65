package jobs

import (
	"context"
	"errors"
)

// QueueNotifier tells the comments service how to announce a pending
// comment: by enqueueing a comments:notify task for the worker.
type QueueNotifier struct {
	Client *Client
}

// NotifyCommentPending enqueues the moderation notification.
func (n *QueueNotifier) NotifyCommentPending(ctx context.Context, commentID int64) error {
	if n == nil || n.Client == nil {
		return errors.New("queue notifier: not configured")
	}
	_, err := n.Client.EnqueueCommentNotify(ctx, CommentNotifyPayload{CommentID: commentID})
	return err
}
