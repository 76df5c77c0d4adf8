// Package render merges a locked candidate into the email layout using the
// Liquid template language. The result is frozen onto the Send row, so the
// same candidate always renders to the same subject, HTML and text.
package render

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/osteele/liquid"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// DefaultLayout is used when no template file is configured.
const DefaultLayout = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>{{ subject | escape }}</title>
</head>
<body>
<span style="display:none;max-height:0;overflow:hidden">{{ preview_text | escape }}</span>
<h1>{{ headline | escape }}</h1>
{% if image_url %}<img src="{{ image_url }}" alt="{{ image_alt | escape }}" width="560">{% endif %}
{{ body_html }}
<p><a href="{{ cta_url }}">{{ cta_text | escape }}</a></p>
<p style="font-size:12px"><a href="{{ unsubscribe_url }}">Unsubscribe</a> | <a href="{{ manage_prefs_url }}">Manage preferences</a></p>
</body>
</html>`

// Options are the fixed links merged into every layout.
type Options struct {
	CTAURL          string
	UnsubscribeURL  string
	ManagePrefsURL  string
	AssetLibraryURL string
}

// Layout is a parsed email layout. It is safe for concurrent use.
type Layout struct {
	tpl  *liquid.Template
	opts Options
}

var (
	legacyIfRe    = regexp.MustCompile(`(?i){{#if\s+image_url\s*}}`)
	legacyEndIfRe = regexp.MustCompile(`(?i){{/if}}`)
	legacyTokenRe = regexp.MustCompile(`{{\s*([A-Z_]+)\s*}}`)
	emptyImgRe    = regexp.MustCompile(`(?i)<img\b[^>]*\bsrc=(["'])\s*["'][^>]*>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
)

// New parses src. Layouts written with upper-case {{TOKEN}} placeholders and
// {{#if image_url}}...{{/if}} blocks are accepted and converted to Liquid.
func New(src string, opts Options) (*Layout, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("render: layout is empty")
	}
	engine := liquid.NewEngine()
	tpl, err := engine.ParseString(convertLegacy(src))
	if err != nil {
		return nil, fmt.Errorf("render: parse layout: %w", err)
	}
	if opts.CTAURL == "" {
		opts.CTAURL = "#"
	}
	if opts.UnsubscribeURL == "" {
		opts.UnsubscribeURL = "%%unsubscribe%%"
	}
	if opts.ManagePrefsURL == "" {
		opts.ManagePrefsURL = opts.UnsubscribeURL
	}
	return &Layout{tpl: tpl, opts: opts}, nil
}

// Load reads the layout from path, or uses DefaultLayout when path is empty.
func Load(path string, opts Options) (*Layout, error) {
	if path == "" {
		return New(DefaultLayout, opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("render: read layout: %w", err)
	}
	return New(string(data), opts)
}

// Render produces the frozen subject, HTML and text for a candidate.
func (l *Layout) Render(c *domain.Candidate) (*domain.RenderedEmail, error) {
	if c == nil {
		return nil, fmt.Errorf("render: candidate is nil")
	}
	out, err := l.tpl.RenderString(l.bindings(c))
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	out = emptyImgRe.ReplaceAllString(out, "")

	return &domain.RenderedEmail{
		Subject:     c.Subject,
		PreviewText: c.PreviewText,
		HTML:        out,
		Text:        TextBody(c),
	}, nil
}

func (l *Layout) bindings(c *domain.Candidate) map[string]interface{} {
	imageURL := ""
	if c.ImageURL != nil {
		imageURL = strings.TrimSpace(*c.ImageURL)
	}
	imageAlt := c.Subject
	if imageAlt == "" {
		imageAlt = "Product image"
	}

	b := map[string]interface{}{
		"subject":           c.Subject,
		"headline":          c.Subject,
		"preview_text":      c.PreviewText,
		"body_html":         c.BodyHTML,
		"cta_text":          c.CTA,
		"cta_url":           l.opts.CTAURL,
		"image_url":         imageURL,
		"image_alt":         imageAlt,
		"unsubscribe_url":   l.opts.UnsubscribeURL,
		"unsubscribe_link":  l.opts.UnsubscribeURL,
		"manage_prefs_url":  l.opts.ManagePrefsURL,
		"asset_library_url": l.opts.AssetLibraryURL,
		"funnel_stage":      string(c.FunnelStage),
	}
	if imageURL == "" {
		b["image_url"] = nil
	}
	return b
}

// TextBody returns the candidate's text body with line endings normalized,
// or a tag-stripped rendering of the HTML body when there is no text.
func TextBody(c *domain.Candidate) string {
	text := c.BodyText
	if strings.TrimSpace(text) == "" {
		text = html.UnescapeString(tagRe.ReplaceAllString(c.BodyHTML, "\n"))
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func convertLegacy(src string) string {
	src = legacyIfRe.ReplaceAllString(src, "{% if image_url %}")
	src = legacyEndIfRe.ReplaceAllString(src, "{% endif %}")
	return legacyTokenRe.ReplaceAllStringFunc(src, func(m string) string {
		name := legacyTokenRe.FindStringSubmatch(m)[1]
		return "{{ " + strings.ToLower(name) + " }}"
	})
}
