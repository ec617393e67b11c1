package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/fetch"
	"github.com/nomicfoundation/sitedata/internal/logging"
)

// DefaultBlogTags are the Ghost tags whose posts are shown on the site.
var DefaultBlogTags = []string{"hardhat", "hardhat-ignition"}

// excerptLength bounds excerpts derived from post HTML, in runes.
const excerptLength = 300

type ghostPost struct {
	ID            *string `json:"id"`
	Title         *string `json:"title"`
	URL           *string `json:"url"`
	Excerpt       *string `json:"excerpt"`
	CustomExcerpt *string `json:"custom_excerpt"`
	FeatureImage  *string `json:"feature_image"`
	HTML          *string `json:"html"`
}

// BlogPost is a blog post as published to the site.
type BlogPost struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Excerpt      string `json:"excerpt"`
	URL          string `json:"url"`
	FeatureImage string `json:"feature_image,omitempty"`
}

// BlogLoader fetches the latest posts carrying one of Tags from a Ghost
// content API.
type BlogLoader struct {
	Client     *http.Client
	ContentURL string
	APIKey     string
	Tags       []string
	Limit      int
	Env        Environment
	Logger     logging.Logger
}

func (l *BlogLoader) Name() string { return CollectionBlogPosts }

func (l *BlogLoader) Load(ctx context.Context) (Collection, error) {
	posts, err := l.Fetch(ctx)
	if err != nil {
		return Collection{}, err
	}
	return collectionOf(l.Name(), posts), nil
}

// Endpoint returns the posts URL for the configured content API.
func (l *BlogLoader) Endpoint() string {
	tags := l.Tags
	if len(tags) == 0 {
		tags = DefaultBlogTags
	}
	q := url.Values{}
	q.Set("key", l.APIKey)
	q.Set("filter", "tag:["+strings.Join(tags, ",")+"]")
	if l.Limit > 0 {
		q.Set("limit", strconv.Itoa(l.Limit))
	}
	return strings.TrimSuffix(l.ContentURL, "/") + "/ghost/api/content/posts?" + q.Encode()
}

// Fetch returns at most Limit posts. Without credentials it returns nothing,
// except in production where that is a configuration error.
func (l *BlogLoader) Fetch(ctx context.Context) ([]BlogPost, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if l.APIKey == "" || l.ContentURL == "" {
		if l.Env.Production {
			return nil, siteerrors.NewConfigError(siteerrors.ErrCodeMissingCredentials,
				"blog.api_key and blog.content_url are required for production builds")
		}
		logger.Warn(ctx, nil, "Blog posts not fetched, returning empty posts; set blog.api_key and blog.content_url")
		return nil, nil
	}

	endpoint := l.Endpoint()
	logger.Info(ctx, "Fetching blog posts from Ghost", "url", logging.RedactURL(endpoint))

	var body struct {
		Posts []ghostPost `json:"posts"`
	}
	if err := fetch.GetJSON(ctx, l.Client, endpoint, &body); err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			se.URL = logging.RedactURL(se.URL)
		}
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = logging.RedactURL(ue.URL)
		}
		return nil, siteerrors.WrapUpstream(err, siteerrors.ErrCodeUpstreamStatus, "Ghost CMS API error")
	}
	if body.Posts == nil {
		return nil, siteerrors.NewValidationError(siteerrors.ErrCodeSchema, "Ghost response has no posts")
	}
	return selectPosts(body.Posts, l.Limit)
}

func selectPosts(raw []ghostPost, limit int) ([]BlogPost, error) {
	var out []BlogPost
	for i, p := range raw {
		if limit > 0 && len(out) == limit {
			break
		}

		var missing []string
		if p.ID == nil {
			missing = append(missing, "id")
		}
		if p.Title == nil {
			missing = append(missing, "title")
		}
		if p.URL == nil {
			missing = append(missing, "url")
		}
		excerpt := deref(p.CustomExcerpt)
		if excerpt == "" {
			excerpt = deref(p.Excerpt)
		}
		if excerpt == "" && p.HTML != nil {
			excerpt = Excerpt(*p.HTML, excerptLength)
		}
		if excerpt == "" && p.Excerpt == nil {
			missing = append(missing, "excerpt")
		}
		if len(missing) > 0 {
			return nil, siteerrors.NewValidationError(siteerrors.ErrCodeSchema,
				fmt.Sprintf("blog post #%d is missing %s", i+1, strings.Join(missing, ", ")))
		}

		out = append(out, BlogPost{
			ID:           *p.ID,
			Title:        *p.Title,
			Excerpt:      excerpt,
			URL:          *p.URL,
			FeatureImage: deref(p.FeatureImage),
		})
	}
	return out, nil
}

// Excerpt returns the visible text of an HTML fragment with whitespace
// collapsed, cut at a word boundary to at most n runes.
func Excerpt(fragment string, n int) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return truncateWords(strings.Join(strings.Fields(b.String()), " "), n)
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "figcaption":
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			case "p", "br", "li", "h1", "h2", "h3", "h4", "div":
				b.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

func truncateWords(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
