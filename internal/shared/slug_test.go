package shared_test

import (
	"strings"
	"testing"

	"github.com/plume-cms/plume/internal/shared"
	_ "github.com/plume-cms/plume/testing"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name  string
		title string
		want  string
	}{
		{"simple", "Hello World", "hello-world"},
		{"punctuation collapses", "Go 1.24: What's New?", "go-1-24-what-s-new"},
		{"diacritics fold", "Café Crème & Brioche", "cafe-creme-brioche"},
		{"leading and trailing noise", "  ...Release Notes!  ", "release-notes"},
		{"repeated separators", "one --- two", "one-two"},
		{"already clean", "plain-slug-7", "plain-slug-7"},
		{"nothing usable", "???", "untitled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shared.Slugify(tc.title); got != tc.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.title, got, tc.want)
			}
		})
	}
}

func TestSlugifyCapsLength(t *testing.T) {
	slug := shared.Slugify(strings.Repeat("word ", 40))
	if len(slug) > 80 {
		t.Fatalf("slug length = %d, want at most 80", len(slug))
	}
	if strings.HasSuffix(slug, "-") {
		t.Fatalf("slug %q has a trailing hyphen", slug)
	}
}
