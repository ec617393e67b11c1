package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomicfoundation/sitedata/internal/cache"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/fetch"
	"github.com/nomicfoundation/sitedata/internal/npm"
	"github.com/nomicfoundation/sitedata/internal/redirects"
)

type fakeCounter struct {
	mu       sync.Mutex
	counts   map[string]int64
	errs     map[string]error
	calls    map[string]int
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeCounter(counts map[string]int64) *fakeCounter {
	return &fakeCounter{counts: counts, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeCounter) LastMonthDownloads(ctx context.Context, pkg string) (int64, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[pkg]++
	if err := f.errs[pkg]; err != nil {
		return 0, err
	}
	return f.counts[pkg], nil
}

const pluginList = `
plugins:
  - name: hardhat-gas-reporter
    author: cgewecke
    authorUrl: https://github.com/cgewecke
    description: Gas usage per unit test.
    tags: [Testing, Gas]
  - name: "@scope/hardhat-thing"
    author: someone
    authorUrl: https://example.com
    description: Does a thing.
    tags: []
    website: https://thing.example.com
  - name: hardhat-alias
    npmPackage: real-package
    author: other
    authorUrl: https://example.org
    description: Published under another name.
    tags: [Tools]
`

func TestParseCommunityPlugins(t *testing.T) {
	plugins, err := ParseCommunityPlugins(strings.NewReader(pluginList))
	require.NoError(t, err)
	require.Len(t, plugins, 3)
	assert.Equal(t, "hardhat-gas-reporter", plugins[0].Package())
	assert.Equal(t, "real-package", plugins[2].Package())
}

func TestParseCommunityPlugins_Invalid(t *testing.T) {
	tests := map[string]string{
		"missing author": `
plugins:
  - name: x
    authorUrl: u
    description: d
    tags: []
`,
		"missing tags": `
plugins:
  - name: x
    author: a
    authorUrl: u
    description: d
`,
		"unknown field": `
plugins:
  - name: x
    author: a
    authorUrl: u
    description: d
    tags: []
    stars: 5
`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCommunityPlugins(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, siteerrors.HasCode(err, siteerrors.ErrCodeSchema))
		})
	}
}

func TestCommunityPluginsLoader(t *testing.T) {
	plugins, err := ParseCommunityPlugins(strings.NewReader(pluginList))
	require.NoError(t, err)

	counter := newFakeCounter(map[string]int64{
		"hardhat-gas-reporter": 500,
		"@scope/hardhat-thing": 900,
		"real-package":         500,
	})
	loader := &CommunityPluginsLoader{Plugins: plugins, Counter: counter, Concurrency: 2}

	records, err := loader.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "@scope/hardhat-thing", records[0].Name)
	assert.Equal(t, int64(900), records[0].Downloads)
	assert.Equal(t, "https://thing.example.com", records[0].Website)
	assert.Equal(t, "scopehardhat-thing", records[0].Slug)

	// Equal downloads are ordered by name.
	assert.Equal(t, "hardhat-alias", records[1].Name)
	assert.Equal(t, "real-package", records[1].NpmPackage)
	assert.Equal(t, "https://www.npmjs.com/package/real-package", records[1].Website)
	assert.Equal(t, "hardhat-gas-reporter", records[2].Name)

	assert.LessOrEqual(t, counter.peak.Load(), int32(2))

	col, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CollectionCommunityPlugins, col.Name)
	assert.Equal(t, 3, col.Count)
}

func TestCommunityPluginsLoader_RateLimited(t *testing.T) {
	counter := newFakeCounter(nil)
	counter.errs["limited"] = fmt.Errorf("limited: %w", npm.ErrRateLimited)
	loader := &CommunityPluginsLoader{
		Plugins: []CommunityPlugin{{Name: "limited", Author: "a", AuthorURL: "u", Description: "d", Tags: []string{}}},
		Counter: counter,
	}

	_, err := loader.Resolve(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, npm.ErrRateLimited)
	assert.True(t, siteerrors.HasCode(err, siteerrors.ErrCodeRateLimited))
}

func TestCommunityPluginsLoader_UsesCache(t *testing.T) {
	counter := newFakeCounter(map[string]int64{"p": 10})
	ttl := cache.NewTTLCache(cache.NewMemoryStore(), time.Hour)
	loader := &CommunityPluginsLoader{
		Plugins: []CommunityPlugin{{Name: "p", Author: "a", AuthorURL: "u", Description: "d", Tags: []string{}}},
		Counter: counter,
		Cache:   ttl,
	}

	for i := 0; i < 3; i++ {
		records, err := loader.Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(10), records[0].Downloads)
	}
	assert.Equal(t, 1, counter.calls["p"])
}

func TestCommunityPluginsLoader_DuplicateSlugs(t *testing.T) {
	counter := newFakeCounter(nil)
	loader := &CommunityPluginsLoader{
		Plugins: []CommunityPlugin{
			{Name: "Foo", Author: "a", AuthorURL: "u", Description: "d", Tags: []string{}},
			{Name: "foo", Author: "a", AuthorURL: "u", Description: "d", Tags: []string{}},
		},
		Counter: counter,
	}
	records, err := loader.Resolve(context.Background())
	require.NoError(t, err)
	slugs := []string{records[0].Slug, records[1].Slug}
	assert.ElementsMatch(t, []string{"foo", "foo-1"}, slugs)
}

type fakeReadmes struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeReadmes) Readme(ctx context.Context, pkg, tag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pkg+"@"+tag)
	if err := f.fail[pkg]; err != nil {
		return "", err
	}
	return "# " + pkg + "\n\nUsage of " + pkg + ".\n", nil
}

func TestBuiltinOfficialPlugins(t *testing.T) {
	plugins, err := BuiltinOfficialPlugins()
	require.NoError(t, err)
	assert.Len(t, plugins, 15)
	assert.Equal(t, "@nomicfoundation/hardhat-toolbox-viem", plugins[0].NpmPackage)
	assert.Equal(t, []string{"Node.js test runner", "node:test", "Test runner"}, plugins[14].Tags)
}

func TestOfficialPluginsLoader(t *testing.T) {
	readmes := &fakeReadmes{}
	loader := &OfficialPluginsLoader{
		Plugins: []OfficialPlugin{
			{NpmPackage: "@nomicfoundation/hardhat-viem", Description: "viem", Tags: []string{"viem"}},
			{NpmPackage: "@nomicfoundation/hardhat-network-helpers", Description: "helpers",
				LinkToItsOwnWebsiteSection: "/docs/network-helpers"},
		},
		Readmes:     readmes,
		Tag:         "next",
		Concurrency: 3,
	}

	records, err := loader.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	viem := records[0]
	assert.Equal(t, "hardhat-viem", viem.Slug)
	assert.Equal(t, "hardhat-viem", viem.ID)
	assert.Equal(t, "hardhat-viem", viem.ShortName)
	assert.Equal(t, "@nomicfoundation/hardhat-viem", viem.Name)
	assert.Equal(t, "/docs/plugins/hardhat-viem", viem.Website)
	assert.Equal(t, "\n\nUsage of @nomicfoundation/hardhat-viem.\n", viem.ReadmeMd)

	assert.Equal(t, "/docs/network-helpers", records[1].Website)
	assert.ElementsMatch(t, []string{
		"@nomicfoundation/hardhat-viem@next",
		"@nomicfoundation/hardhat-network-helpers@next",
	}, readmes.calls)
}

func TestOfficialPluginsLoader_CacheFile(t *testing.T) {
	dir := t.TempDir()
	readmes := &fakeReadmes{}
	ttl := cache.NewTTLCache(cache.NewFileStore(dir, "readmeContent"), 3*time.Hour)
	loader := &OfficialPluginsLoader{
		Plugins: []OfficialPlugin{{NpmPackage: "@nomicfoundation/hardhat-mocha", Description: "mocha"}},
		Readmes: readmes,
		Cache:   ttl,
	}

	_, err := loader.Resolve(context.Background())
	require.NoError(t, err)
	_, err = loader.Resolve(context.Background())
	require.NoError(t, err)
	assert.Len(t, readmes.calls, 1)

	data, err := os.ReadFile(filepath.Join(dir, "nomicfoundationhardhat-mocha-README.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "dateStoredValueOf")
	assert.Equal(t, "\n\nUsage of @nomicfoundation/hardhat-mocha.\n", doc["readmeContent"])
}

func TestOfficialPluginsLoader_Failure(t *testing.T) {
	readmes := &fakeReadmes{fail: map[string]error{"broken": npm.ErrReadmeNotFound}}
	loader := &OfficialPluginsLoader{
		Plugins: []OfficialPlugin{{NpmPackage: "broken", Description: "d"}},
		Readmes: readmes,
	}
	_, err := loader.Resolve(context.Background())
	assert.ErrorIs(t, err, npm.ErrReadmeNotFound)
}

func TestStripFirstHeading(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"# Title\nbody", "\nbody"},
		{"intro\n# Title\nbody", "intro\n\nbody"},
		{"  # Indented\nrest", "\nrest"},
		{"no heading", "no heading"},
		{"# One\n# Two", "\n# Two"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFirstHeading(tt.in), tt.in)
	}
}

const releasesJSON = `[
  {"id": 1, "name": "", "tag_name": "hardhat@3.1.0", "body": "Summary\n\n### Changes\n- a", "draft": false, "prerelease": false, "published_at": "2025-01-03T00:00:00Z", "html_url": "https://gh/1"},
  {"id": 2, "name": "Draft", "tag_name": "hardhat@3.0.9", "draft": true, "prerelease": false, "published_at": "2025-01-02T00:00:00Z", "html_url": "https://gh/2"},
  {"id": 3, "name": "Beta", "tag_name": "hardhat@3.0.8", "draft": false, "prerelease": true, "published_at": "2025-01-02T00:00:00Z", "html_url": "https://gh/3"},
  {"id": 4, "name": "Ignition", "tag_name": "@nomicfoundation/hardhat-ignition@3.0.0", "draft": false, "prerelease": false, "published_at": "2025-01-02T00:00:00Z", "html_url": "https://gh/4"},
  {"id": 5, "name": "Hardhat 3.0.7", "tag_name": "hardhat@3.0.7", "body": null, "draft": false, "prerelease": false, "published_at": "2025-01-01T00:00:00Z", "html_url": "https://gh/5"},
  {"id": 6, "tag_name": "hardhat@3.0.6", "body": "  Plain body  ", "draft": false, "prerelease": false, "published_at": "2024-12-30T00:00:00Z", "html_url": "https://gh/6"},
  {"id": 7, "tag_name": "hardhat@3.0.5", "draft": false, "prerelease": false, "published_at": "2024-12-29T00:00:00Z", "html_url": "https://gh/7"},
  {"id": 8, "tag_name": "hardhat@2.22.0", "draft": false, "prerelease": false, "published_at": "2024-12-28T00:00:00Z", "html_url": "https://gh/8"}
]`

func TestParseReleases(t *testing.T) {
	releases, err := ParseReleases([]byte(releasesJSON), "hardhat@3.", 3)
	require.NoError(t, err)
	require.Len(t, releases, 3)

	assert.Equal(t, Release{ID: "1", Name: "hardhat 3.1.0", Body: "Summary", HTMLURL: "https://gh/1", PublishedAt: "2025-01-03T00:00:00Z"}, releases[0])
	assert.Equal(t, "Hardhat 3.0.7", releases[1].Name)
	assert.Equal(t, "", releases[1].Body)
	assert.Equal(t, "6", releases[2].ID)
	assert.Equal(t, "Plain body", releases[2].Body)
}

func TestParseReleases_Schema(t *testing.T) {
	_, err := ParseReleases([]byte(`[{"id": 1, "tag_name": "hardhat@3.0.0"}]`), "hardhat@3.", 3)
	require.Error(t, err)
	assert.True(t, siteerrors.HasCode(err, siteerrors.ErrCodeSchema))
	assert.Contains(t, err.Error(), "draft")

	_, err = ParseReleases([]byte(`{"message": "Not Found"}`), "", 3)
	assert.Error(t, err)
}

func TestReleasesLoader(t *testing.T) {
	var hits atomic.Int32
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, releasesJSON)
	}))
	defer srv.Close()

	loader := &ReleasesLoader{Client: fetch.New(fetch.Config{}), URL: srv.URL, TagPrefix: "hardhat@3.", Limit: 3}

	t.Run("skipped outside production", func(t *testing.T) {
		col, err := loader.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, col.Count)
		assert.Equal(t, []Release{}, col.Items)
		assert.Equal(t, int32(0), hits.Load())
	})

	t.Run("forced", func(t *testing.T) {
		forced := *loader
		forced.Env = Environment{ForceReleases: true}
		forced.Token = "ghp_x"
		col, err := forced.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, col.Count)
		assert.Equal(t, "Bearer ghp_x", auth)
	})

	t.Run("upstream error", func(t *testing.T) {
		bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusForbidden)
		}))
		defer bad.Close()

		l := &ReleasesLoader{Client: fetch.New(fetch.Config{}), URL: bad.URL, Env: Environment{Production: true}}
		_, err := l.Load(context.Background())
		require.Error(t, err)
		assert.True(t, fetch.IsStatus(err, http.StatusForbidden))
		assert.Contains(t, err.Error(), "rate limited")
	})
}

const ghostJSON = `{"posts": [
  {"id": "a", "title": "First", "url": "https://blog/a", "excerpt": "Short", "feature_image": "https://img/a.png"},
  {"id": "b", "title": "Second", "url": "https://blog/b", "custom_excerpt": "Custom", "excerpt": "Auto"},
  {"id": "c", "title": "Third", "url": "https://blog/c", "excerpt": "", "html": "<p>Hello <b>world</b></p><script>x()</script><p>Again</p>"},
  {"id": "d", "title": "Fourth", "url": "https://blog/d", "excerpt": "Dropped by the limit"}
]}`

func TestBlogLoader(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ghost/api/content/posts", r.URL.Path)
		query = r.URL.RawQuery
		fmt.Fprint(w, ghostJSON)
	}))
	defer srv.Close()

	loader := &BlogLoader{Client: fetch.New(fetch.Config{}), ContentURL: srv.URL + "/", APIKey: "k123", Limit: 3}
	posts, err := loader.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, BlogPost{ID: "a", Title: "First", Excerpt: "Short", URL: "https://blog/a", FeatureImage: "https://img/a.png"}, posts[0])
	assert.Equal(t, "Custom", posts[1].Excerpt)
	assert.Equal(t, "Hello world Again", posts[2].Excerpt)

	assert.Contains(t, query, "key=k123")
	assert.Contains(t, query, "filter=tag%3A%5Bhardhat%2Chardhat-ignition%5D")
}

func TestBlogLoader_MissingCredentials(t *testing.T) {
	loader := &BlogLoader{Client: fetch.New(fetch.Config{})}

	posts, err := loader.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)

	loader.Env = Environment{Production: true}
	_, err = loader.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, siteerrors.IsConfigError(err))
}

func TestBlogLoader_RedactsKeyInErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	loader := &BlogLoader{Client: fetch.New(fetch.Config{}), ContentURL: srv.URL, APIKey: "supersecret"}
	_, err := loader.Fetch(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
	assert.True(t, fetch.IsStatus(err, http.StatusUnauthorized))
}

func TestBlogLoader_Schema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"posts": [{"id": "a", "url": "u", "excerpt": "e"}]}`)
	}))
	defer srv.Close()

	loader := &BlogLoader{Client: fetch.New(fetch.Config{}), ContentURL: srv.URL, APIKey: "k"}
	_, err := loader.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "A & B", Excerpt("<p>A &amp; B</p>", 100))
	assert.Equal(t, "one two…", Excerpt("<p>one two three</p>", 9))
	assert.Equal(t, "", Excerpt("", 10))
	assert.Equal(t, "text", Excerpt("<style>p{}</style>text", 10))
}

const descriptorsJSON = `{
  "ERROR_CATEGORIES": {
    "hardhat-ignition": {"min": 10000, "max": 10099, "pluginId": "hardhat-ignition", "websiteTitle": "Ignition",
      "CATEGORIES": {"GENERAL": {"min": 10000, "max": 10099, "websiteSubTitle": "General errors"}}},
    "hardhat": {"min": 1, "max": 9999, "websiteTitle": "Hardhat",
      "CATEGORIES": {
        "NETWORK": {"min": 700, "max": 799, "websiteSubTitle": "Network errors"},
        "GENERAL": {"min": 1, "max": 99, "websiteSubTitle": "General errors"}
      }}
  },
  "ERRORS": {
    "hardhat": {
      "GENERAL": {
        "INVALID_CONFIG": {"number": 2, "websiteTitle": "Invalid config", "websiteDescription": "The config is invalid."},
        "NOT_INSIDE_PROJECT": {"number": 1, "websiteTitle": "You are not inside a Hardhat project", "websiteDescription": "Run it inside a project."}
      },
      "NETWORK": {
        "INVALID_URL": {"number": 700, "websiteTitle": "Invalid URL", "websiteDescription": "Bad URL."}
      }
    },
    "hardhat-ignition": {
      "GENERAL": {
        "MODULE_FAILED": {"number": 10000, "websiteTitle": "Module failed", "websiteDescription": "A module failed."}
      }
    }
  }
}`

func TestErrorReference(t *testing.T) {
	d, err := ParseErrorDescriptors(strings.NewReader(descriptorsJSON))
	require.NoError(t, err)

	ref := d.Reference()
	require.Len(t, ref, 2)
	assert.Equal(t, "Hardhat errors", ref[0].Subtitle)
	assert.Equal(t, "Ignition errors", ref[1].Subtitle)

	require.Len(t, ref[0].Categories, 2)
	assert.Equal(t, "General errors", ref[0].Categories[0].Subtitle)
	assert.Equal(t, "Network errors", ref[0].Categories[1].Subtitle)

	general := ref[0].Categories[0].Errors
	require.Len(t, general, 2)
	assert.Equal(t, ErrorRef{
		Code:        1,
		Slug:        "hhe1-you-are-not-inside-a-hardhat-project",
		Title:       "HHE1: You are not inside a Hardhat project",
		Description: "Run it inside a project.",
	}, general[0])
	assert.Equal(t, 2, general[1].Code)

	list := ErrorRedirects(ref)
	assert.Equal(t, redirects.ListErrorCodes, list.Name)
	require.Len(t, list.Entries, 4)
	assert.Equal(t, redirects.Entry{Source: "/hhe1", Destination: "/docs/reference/errors#hhe1-you-are-not-inside-a-hardhat-project"}, list.Entries[0])
	assert.Equal(t, "/hhe10000", list.Entries[3].Source)
	require.NoError(t, redirects.Validate(list))

	lists, err := redirects.Assemble(list)
	require.NoError(t, err)
	table, err := redirects.Aggregate(lists...)
	require.NoError(t, err)
	target, ok := table.Lookup("/hhe700")
	require.True(t, ok)
	assert.Equal(t, "/docs/reference/errors#hhe700-invalid-url", target.Destination)
}

func TestWriteErrorsMarkdown(t *testing.T) {
	d, err := ParseErrorDescriptors(strings.NewReader(descriptorsJSON))
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, WriteErrorsMarkdown(&b, d.Reference()))
	md := b.String()
	assert.True(t, strings.HasPrefix(md, "# Hardhat errors\n"))
	assert.Contains(t, md, "\n## Hardhat errors\n")
	assert.Contains(t, md, "\n### Network errors\n")
	assert.Contains(t, md, "\n#### HHE700: Invalid URL\n\nBad URL.\n")
	assert.Less(t, strings.Index(md, "HHE1:"), strings.Index(md, "HHE2:"))
}

func TestErrorsLoader(t *testing.T) {
	d, err := LoadErrorDescriptorsFile("")
	require.NoError(t, err)
	col, err := (&ErrorsLoader{Descriptors: d}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, col.Count)
	assert.Equal(t, []ErrorPackage{}, col.Items)

	path := filepath.Join(t.TempDir(), "descriptors.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorsJSON), 0o644))
	d, err = LoadErrorDescriptorsFile(path)
	require.NoError(t, err)
	col, err = (&ErrorsLoader{Descriptors: d}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, col.Count)

	_, err = LoadErrorDescriptorsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, siteerrors.HasCode(err, siteerrors.ErrCodeFileNotFound))

	_, err = ParseErrorDescriptors(strings.NewReader(`{"ERRORS": {}}`))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
