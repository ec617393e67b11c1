// Package npm talks to the npm registry and the npm downloads API. It
// resolves a dist-tag to a version, streams that version's tarball to pull the
// README out of it, and reads last-month download counts.
package npm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nomicfoundation/sitedata/internal/fetch"
)

const (
	DefaultRegistryURL  = "https://registry.npmjs.org"
	DefaultDownloadsURL = "https://api.npmjs.org/downloads/point"
)

// ErrRateLimited is returned when the downloads API answers 429.
var ErrRateLimited = errors.New("npm downloads API rate limit exceeded")

// Metadata is the subset of a registry package document that is used here.
type Metadata struct {
	Name     string             `json:"name"`
	DistTags map[string]string  `json:"dist-tags"`
	Versions map[string]Version `json:"versions"`
}

// Version is one published version of a package.
type Version struct {
	Version string `json:"version"`
	Dist    Dist   `json:"dist"`
}

// Dist locates the published artifact of a version.
type Dist struct {
	Tarball string `json:"tarball"`
}

// Client is an npm registry and downloads API client.
type Client struct {
	http         *http.Client
	registryURL  string
	downloadsURL string
}

// Option configures a Client.
type Option func(*Client)

// WithRegistryURL overrides the registry base URL.
func WithRegistryURL(u string) Option {
	return func(c *Client) { c.registryURL = strings.TrimRight(u, "/") }
}

// WithDownloadsURL overrides the downloads API base URL.
func WithDownloadsURL(u string) Option {
	return func(c *Client) { c.downloadsURL = strings.TrimRight(u, "/") }
}

// NewClient returns a client using httpClient for every request.
func NewClient(httpClient *http.Client, opts ...Option) *Client {
	c := &Client{
		http:         httpClient,
		registryURL:  DefaultRegistryURL,
		downloadsURL: DefaultDownloadsURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// escapePackage escapes a package name for a URL path. Scoped names keep
// their @ and encode the slash, as the registry expects.
func escapePackage(pkg string) string {
	return url.PathEscape(pkg)
}

// Metadata fetches the registry document of pkg.
func (c *Client) Metadata(ctx context.Context, pkg string) (*Metadata, error) {
	var meta Metadata
	if err := fetch.GetJSON(ctx, c.http, c.registryURL+"/"+escapePackage(pkg), &meta); err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", pkg, err)
	}
	if meta.Name == "" {
		meta.Name = pkg
	}
	return &meta, nil
}

// ResolveVersion maps tag to a concrete version of meta. A tag that is
// already a published version resolves to itself.
func ResolveVersion(meta *Metadata, tag string) (Version, error) {
	version, ok := meta.DistTags[tag]
	if !ok {
		version = tag
	}

	v, ok := meta.Versions[version]
	if !ok {
		return Version{}, fmt.Errorf("version '%s' not found for package '%s'", tag, meta.Name)
	}
	if v.Version == "" {
		v.Version = version
	}
	if v.Dist.Tarball == "" {
		return Version{}, fmt.Errorf("version '%s' of package '%s' has no tarball", version, meta.Name)
	}
	return v, nil
}

// Readme returns the README text of pkg at the version tag resolves to.
func (c *Client) Readme(ctx context.Context, pkg, tag string) (string, error) {
	meta, err := c.Metadata(ctx, pkg)
	if err != nil {
		return "", err
	}
	v, err := ResolveVersion(meta, tag)
	if err != nil {
		return "", err
	}

	resp, err := fetch.Get(ctx, c.http, v.Dist.Tarball, nil)
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("failed to download tarball for %s@%s: %s: %w", pkg, v.Version, se.Status, err)
		}
		return "", fmt.Errorf("failed to download tarball for %s@%s: %w", pkg, v.Version, err)
	}
	defer resp.Body.Close()

	readme, err := ExtractReadme(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s@%s: %w", pkg, v.Version, err)
	}
	return readme, nil
}

type downloadsResponse struct {
	Downloads *int64 `json:"downloads"`
	Package   string `json:"package"`
}

// LastMonthDownloads returns the download count of pkg over the last month.
// An unknown package (404) counts as zero downloads.
func (c *Client) LastMonthDownloads(ctx context.Context, pkg string) (int64, error) {
	u := c.downloadsURL + "/last-month/" + escapePackage(pkg)

	var body downloadsResponse
	err := fetch.GetJSON(ctx, c.http, u, &body)
	switch {
	case fetch.IsStatus(err, http.StatusNotFound):
		return 0, nil
	case fetch.IsStatus(err, http.StatusTooManyRequests):
		return 0, fmt.Errorf("%s: %w", pkg, ErrRateLimited)
	case err != nil:
		return 0, fmt.Errorf("fetching downloads for %s: %w", pkg, err)
	}

	if body.Downloads == nil || *body.Downloads < 0 {
		return 0, fmt.Errorf("downloads response for %s has no valid download count", pkg)
	}
	return *body.Downloads, nil
}
