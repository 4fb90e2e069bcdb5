package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Content
	}{
		{
			name: "empty body",
			body: "",
			want: Empty(),
		},
		{
			name: "plain paragraph",
			body: "<p>Hello world</p>",
			want: Content{Text: "Hello world", Hashtags: []string{}, Mentions: []string{}, URLs: []string{}},
		},
		{
			name: "hashtag mention and link",
			body: `<p>Reading <a href="https://example.social/tags/golang" class="mention hashtag" rel="tag">#<span>golang</span></a> with ` +
				`<span class="h-card"><a href="https://other.example/@bob" class="u-url mention">@<span>bob</span></a></span> ` +
				`<a href="https://go.dev/blog" rel="nofollow noopener" target="_blank"><span class="invisible">https://</span><span class="">go.dev/blog</span></a></p>`,
			want: Content{
				Text:     "Reading #golang with @bob https://go.dev/blog",
				Hashtags: []string{"golang"},
				Mentions: []string{"bob"},
				URLs:     []string{"https://go.dev/blog"},
			},
		},
		{
			name: "line breaks and paragraphs",
			body: "<p>first line<br>second line</p><p>next paragraph</p>",
			want: Content{Text: "first line\nsecond line\n\nnext paragraph", Hashtags: []string{}, Mentions: []string{}, URLs: []string{}},
		},
		{
			name: "hashtag without span",
			body: `<a class="mention hashtag" href="/tags/art">#art</a>`,
			want: Content{Text: "#art", Hashtags: []string{"art"}, Mentions: []string{}, URLs: []string{}},
		},
		{
			name: "malformed html",
			body: "<p>unclosed <b>bold",
			want: Content{Text: "unclosed bold", Hashtags: []string{}, Mentions: []string{}, URLs: []string{}},
		},
		{
			name: "entities decoded",
			body: "<p>fish &amp; chips &lt;3</p>",
			want: Content{Text: "fish & chips <3", Hashtags: []string{}, Mentions: []string{}, URLs: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.body))
		})
	}
}

func TestNormalizeIsPure(t *testing.T) {
	body := `<p><a class="mention hashtag" href="/tags/x">#<span>x</span></a></p>`
	assert.Equal(t, Normalize(body), Normalize(body))
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder()
	assert.Equal(t, "<unavailable>", p.Text)
	assert.NotNil(t, p.Hashtags)
	assert.NotNil(t, p.URLs)
}
