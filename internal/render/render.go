// Package render turns author Markdown into HTML that is safe to embed in
// pages. Articles store the sanitized output, so everything downstream can
// treat it as trusted.
package render

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"golang.org/x/sync/singleflight"
)

// Renderer converts Markdown into HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Sanitizer strips unsafe markup from HTML.
type Sanitizer interface {
	Sanitize(html string) string
}

// GoldmarkRenderer renders GitHub-flavoured Markdown.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

// NewGoldmarkRenderer constructs the default Markdown renderer.
func NewGoldmarkRenderer() *GoldmarkRenderer {
	return &GoldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// Render implements Renderer.
func (g *GoldmarkRenderer) Render(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// BluemondaySanitizer applies the user-generated-content policy.
type BluemondaySanitizer struct {
	policy *bluemonday.Policy
}

// NewBluemondaySanitizer constructs the default sanitizer.
func NewBluemondaySanitizer() *BluemondaySanitizer {
	return &BluemondaySanitizer{policy: bluemonday.UGCPolicy()}
}

// Sanitize implements Sanitizer.
func (b *BluemondaySanitizer) Sanitize(html string) string {
	return b.policy.Sanitize(html)
}

const (
	cacheSize = 256
	cacheTTL  = 10 * time.Minute
)

// Pipeline composes rendering and sanitizing with a small expiring cache.
// Concurrent requests for the same document share one render.
type Pipeline struct {
	renderer  Renderer
	sanitizer Sanitizer
	cache     *expirable.LRU[string, string]
	group     singleflight.Group
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(r Renderer, s Sanitizer) *Pipeline {
	return &Pipeline{
		renderer:  r,
		sanitizer: s,
		cache:     expirable.NewLRU[string, string](cacheSize, nil, cacheTTL),
	}
}

// HTML returns sanitized HTML for the given Markdown.
func (p *Pipeline) HTML(markdown string) (string, error) {
	key := cacheKey(markdown)
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}
	value, err, _ := p.group.Do(key, func() (any, error) {
		html, err := p.renderer.Render(markdown)
		if err != nil {
			return nil, err
		}
		safe := p.sanitizer.Sanitize(html)
		p.cache.Add(key, safe)
		return safe, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func cacheKey(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return hex.EncodeToString(sum[:])
}
