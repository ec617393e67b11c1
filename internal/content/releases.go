package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/fetch"
	"github.com/nomicfoundation/sitedata/internal/logging"
)

const DefaultReleasesURL = "https://api.github.com/repos/NomicFoundation/hardhat/releases"

// githubRelease mirrors the fields of the GitHub releases API that are read.
// Pointers distinguish absent required fields from zero values.
type githubRelease struct {
	ID          *int64  `json:"id"`
	Name        *string `json:"name"`
	TagName     *string `json:"tag_name"`
	Body        *string `json:"body"`
	Draft       *bool   `json:"draft"`
	Prerelease  *bool   `json:"prerelease"`
	PublishedAt *string `json:"published_at"`
	HTMLURL     *string `json:"html_url"`
}

func (r githubRelease) validate() error {
	var missing []string
	if r.ID == nil {
		missing = append(missing, "id")
	}
	if r.TagName == nil {
		missing = append(missing, "tag_name")
	}
	if r.Draft == nil {
		missing = append(missing, "draft")
	}
	if r.Prerelease == nil {
		missing = append(missing, "prerelease")
	}
	if r.PublishedAt == nil {
		missing = append(missing, "published_at")
	}
	if r.HTMLURL == nil {
		missing = append(missing, "html_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Release is a GitHub release as published to the site.
type Release struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}

// ReleasesLoader fetches the most recent stable releases whose tag starts
// with TagPrefix.
type ReleasesLoader struct {
	Client *http.Client
	URL    string
	// Token is sent as a bearer token when set, for a higher rate limit.
	Token     string
	TagPrefix string
	Limit     int
	Env       Environment
	Logger    logging.Logger
}

func (l *ReleasesLoader) Name() string { return CollectionGitHubReleases }

func (l *ReleasesLoader) Load(ctx context.Context) (Collection, error) {
	releases, err := l.Fetch(ctx)
	if err != nil {
		return Collection{}, err
	}
	return collectionOf(l.Name(), releases), nil
}

// Fetch returns the releases, or none outside production unless forced.
func (l *ReleasesLoader) Fetch(ctx context.Context) ([]Release, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	if !l.Env.Production && !l.Env.ForceReleases {
		logger.Warn(ctx, nil, "GitHub releases not fetched outside production builds; set github.force_releases to fetch them")
		return nil, nil
	}

	url := l.URL
	if url == "" {
		url = DefaultReleasesURL
	}
	logger.Info(ctx, "Fetching GitHub releases", "url", url)

	header := http.Header{"Accept": {"application/vnd.github+json"}}
	if l.Token != "" {
		header.Set("Authorization", "Bearer "+l.Token)
	}

	var raw []githubRelease
	if err := fetch.GetJSONWithHeader(ctx, l.Client, url, header, &raw); err != nil {
		return nil, siteerrors.WrapUpstream(err, siteerrors.ErrCodeUpstreamStatus, "GitHub API error")
	}
	return selectReleases(raw, l.TagPrefix, l.Limit)
}

// ParseReleases decodes a releases API response body.
func ParseReleases(data []byte, prefix string, limit int) ([]Release, error) {
	var raw []githubRelease
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema, "invalid GitHub releases response")
	}
	return selectReleases(raw, prefix, limit)
}

// selectReleases validates raw, drops drafts and prereleases, keeps tags
// starting with prefix and returns at most limit releases in API order.
func selectReleases(raw []githubRelease, prefix string, limit int) ([]Release, error) {
	for i, r := range raw {
		if err := r.validate(); err != nil {
			return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema,
				fmt.Sprintf("GitHub release #%d", i+1))
		}
	}

	var out []Release
	for _, r := range raw {
		if *r.Draft || *r.Prerelease || !strings.HasPrefix(*r.TagName, prefix) {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}

		name := deref(r.Name)
		if name == "" {
			name = strings.Replace(*r.TagName, "@", " ", 1)
		}
		body := deref(r.Body)
		if i := strings.Index(body, "###"); i >= 0 {
			body = body[:i]
		}

		out = append(out, Release{
			ID:          fmt.Sprintf("%d", *r.ID),
			Name:        name,
			Body:        strings.TrimSpace(body),
			HTMLURL:     *r.HTMLURL,
			PublishedAt: *r.PublishedAt,
		})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
