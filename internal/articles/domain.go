package articles

import "time"

// Status is the lifecycle state of an article.
type Status string

// Article lifecycle states. Only published articles are publicly visible.
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// PubliclyVisible reports whether the state may be served to anonymous
// readers. Every public read path checks this, not just the SQL filter.
func (s Status) PubliclyVisible() bool {
	return s == StatusPublished
}

// TagRef is the tag projection embedded in article reads.
type TagRef struct {
	ID   int64
	Name string
	Slug string
}

// Article is a blog post in any lifecycle state.
type Article struct {
	ID           int64
	AuthorID     int64
	AuthorName   string
	Title        string
	Slug         string
	Excerpt      string
	BodyMarkdown string
	BodyHTML     string
	CoverPath    string
	Status       Status
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Tags         []TagRef
}

// Input carries author-supplied fields for create and update.
type Input struct {
	Title        string
	Excerpt      string
	BodyMarkdown string
	CoverPath    string
	TagIDs       []int64
}

// ListFilters narrows admin and public listings.
type ListFilters struct {
	Status   Status
	TagSlug  string
	AuthorID int64
	Search   string
	Page     int
	PerPage  int
}
