package tags

import "time"

// Tag labels articles for discovery. Name and slug are both unique; the
// slug is derived from the name and never edited directly.
type Tag struct {
	ID           int64
	Name         string
	Slug         string
	ArticleCount int
	CreatedAt    time.Time
}
