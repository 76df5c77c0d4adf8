package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/weekly-campaign/internal/domain"
)

func strPtr(s string) *string { return &s }

func candidate() *domain.Candidate {
	return &domain.Candidate{
		ID:          "cand-1",
		Rank:        1,
		FunnelStage: domain.StageTop,
		Subject:     "Fresh picks for Fall & Winter",
		PreviewText: "See what's new this week",
		BodyHTML:    "<p>Hello team</p><p>New arrivals landed.</p>",
		BodyText:    "Hello team\r\n\r\nNew arrivals landed.",
		CTA:         "Browse the catalog",
		ImageURL:    strPtr("https://assets.example.com/fall.png"),
	}
}

func TestRender_DefaultLayout(t *testing.T) {
	l, err := Load("", Options{CTAURL: "https://shop.example.com"})
	require.NoError(t, err)

	out, err := l.Render(candidate())
	require.NoError(t, err)

	assert.Equal(t, "Fresh picks for Fall & Winter", out.Subject)
	assert.Equal(t, "See what's new this week", out.PreviewText)
	assert.Contains(t, out.HTML, "<title>Fresh picks for Fall &amp; Winter</title>")
	assert.Contains(t, out.HTML, "<p>Hello team</p><p>New arrivals landed.</p>")
	assert.Contains(t, out.HTML, `<img src="https://assets.example.com/fall.png"`)
	assert.Contains(t, out.HTML, `<a href="https://shop.example.com">Browse the catalog</a>`)
	assert.Contains(t, out.HTML, `<a href="%%unsubscribe%%">Unsubscribe</a>`)
	assert.Contains(t, out.HTML, `<a href="%%unsubscribe%%">Manage preferences</a>`)
	assert.Equal(t, "Hello team\n\nNew arrivals landed.", out.Text)
}

func TestRender_NoImage(t *testing.T) {
	l, err := New(DefaultLayout, Options{})
	require.NoError(t, err)

	c := candidate()
	c.ImageURL = nil
	out, err := l.Render(c)
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<img")
	assert.Contains(t, out.HTML, `<a href="#">Browse the catalog</a>`)

	c.ImageURL = strPtr("   ")
	out, err = l.Render(c)
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<img")
}

func TestRender_LegacyTokens(t *testing.T) {
	src := `<h1>{{ HEADLINE }}</h1>{{#if image_url}}<img src="{{IMAGE_URL}}" alt="{{IMAGE_ALT}}">{{/if}}` +
		`<div>{{BODY_HTML}}</div><a href="{{UNSUBSCRIBE_LINK}}">x</a><a href="{{MANAGE_PREFS_URL}}">y</a>` +
		`<img src="" alt="spacer"><footer>{{ASSET_LIBRARY_URL}}</footer>`
	l, err := New(src, Options{
		UnsubscribeURL:  "https://example.com/u",
		ManagePrefsURL:  "https://example.com/p",
		AssetLibraryURL: "https://assets.example.com",
	})
	require.NoError(t, err)

	out, err := l.Render(candidate())
	require.NoError(t, err)
	assert.Contains(t, out.HTML, "<h1>Fresh picks for Fall & Winter</h1>")
	assert.Contains(t, out.HTML, `<img src="https://assets.example.com/fall.png" alt="Fresh picks for Fall & Winter">`)
	assert.Contains(t, out.HTML, `<a href="https://example.com/u">x</a>`)
	assert.Contains(t, out.HTML, `<a href="https://example.com/p">y</a>`)
	assert.Contains(t, out.HTML, "<footer>https://assets.example.com</footer>")
	assert.NotContains(t, out.HTML, "spacer")

	c := candidate()
	c.ImageURL = nil
	out, err = l.Render(c)
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<img")
}

func TestRender_Stable(t *testing.T) {
	l, err := Load("", Options{})
	require.NoError(t, err)
	a, err := l.Render(candidate())
	require.NoError(t, err)
	b, err := l.Render(candidate())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.html")
	require.NoError(t, os.WriteFile(path, []byte("<b>{{ subject }}</b>"), 0644))

	l, err := Load(path, Options{})
	require.NoError(t, err)
	out, err := l.Render(candidate())
	require.NoError(t, err)
	assert.Equal(t, "<b>Fresh picks for Fall & Winter</b>", out.HTML)

	_, err = Load(filepath.Join(t.TempDir(), "missing.html"), Options{})
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	_, err := New("  ", Options{})
	assert.Error(t, err)

	_, err = New("{% if subject %}unclosed", Options{})
	assert.Error(t, err)

	l, err := New(DefaultLayout, Options{})
	require.NoError(t, err)
	_, err = l.Render(nil)
	assert.Error(t, err)
}

func TestTextBody(t *testing.T) {
	c := &domain.Candidate{BodyHTML: "<p>One &amp; two</p><p>Three</p>"}
	assert.Equal(t, "One & two\n\nThree", TextBody(c))

	c = &domain.Candidate{BodyText: "a\rb\r\nc"}
	assert.Equal(t, "a\nb\nc", TextBody(c))
}
