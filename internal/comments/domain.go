package comments

import "time"

// CommentStatus is the moderation state of a comment.
type CommentStatus string

// Moderation states. Readers only ever see approved comments.
const (
	StatusPending  CommentStatus = "pending"
	StatusApproved CommentStatus = "approved"
	StatusRejected CommentStatus = "rejected"
)

// Valid reports whether s is one of the known states.
func (s CommentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Comment is a reader-submitted response to a published article. The body
// is stored as plain text and escaped when templates print it.
type Comment struct {
	ID           int64
	ArticleID    int64
	ArticleTitle string
	ArticleSlug  string
	AuthorName   string
	AuthorEmail  string
	Body         string
	Status       CommentStatus
	CreatedAt    time.Time
}

// PostInput carries the public comment form fields.
type PostInput struct {
	ArticleSlug string
	AuthorName  string
	AuthorEmail string
	Body        string
}
