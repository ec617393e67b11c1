package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/content"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/redirects"
)

const descriptorsJSON = `{
  "ERROR_CATEGORIES": {
    "hardhat": {
      "min": 1, "max": 99, "websiteTitle": "Hardhat",
      "CATEGORIES": {
        "GENERAL": {"min": 1, "max": 99, "websiteSubTitle": "General errors"}
      }
    }
  },
  "ERRORS": {
    "hardhat": {
      "GENERAL": {
        "NOT_INSIDE_PROJECT": {
          "number": 1,
          "websiteTitle": "You are not inside a Hardhat project",
          "websiteDescription": "Run the command inside a project."
        }
      }
    }
  }
}`

type staticLoader struct {
	name  string
	items []string
	err   error
}

func (l staticLoader) Name() string { return l.name }

func (l staticLoader) Load(ctx context.Context) (content.Collection, error) {
	if l.err != nil {
		return content.Collection{}, l.err
	}
	return content.Collection{Name: l.name, Items: l.items, Count: len(l.items)}, nil
}

func createTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: config.EnvDevelopment,
		Build:       config.BuildConfig{OutputDir: filepath.Join(dir, "generated"), Concurrency: 2},
		Log:         config.LogConfig{Level: "info", Format: "text"},
		HTTP:        config.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "sitedata-test"},
		Cache: config.CacheConfig{
			Backend:      config.CacheMemory,
			ReadmeTTL:    time.Hour,
			DownloadsTTL: time.Hour,
		},
		Registry:  config.RegistryConfig{Tag: "latest"},
		GitHub:    config.GitHubConfig{TagPrefix: "hardhat@3.", Limit: 3},
		Blog:      config.BlogConfig{Limit: 3},
		Plugins:   config.PluginsConfig{OfficialScope: content.DefaultOfficialScope},
		Redirects: config.RedirectsConfig{Format: string(redirects.FormatVercel)},
	}
}

func builtinRedirectCount(t *testing.T) int {
	t.Helper()
	lists, err := redirects.Assemble(redirects.List{})
	require.NoError(t, err)
	table, err := redirects.Aggregate(lists...)
	require.NoError(t, err)
	return table.Len()
}

func writeFile(t *testing.T, path, data string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestBuildService_Build(t *testing.T) {
	cfg := createTestConfig(t)
	svc := NewBuildService(cfg, nil, WithLoaders(
		staticLoader{name: "alpha", items: []string{"a", "b"}},
		staticLoader{name: "beta", items: []string{}},
	))

	result, err := svc.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	_, err = uuid.Parse(result.ID)
	assert.NoError(t, err)
	assert.Equal(t, builtinRedirectCount(t), result.Redirects)
	assert.Equal(t, map[string]int{"alpha": 2, "beta": 0}, result.Collections)
	assert.Empty(t, result.Errors)

	var alpha []string
	readJSON(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir, "alpha.json"), &alpha)
	assert.Equal(t, []string{"a", "b"}, alpha)

	var vercel struct {
		Redirects []struct {
			Source      string `json:"source"`
			Destination string `json:"destination"`
		} `json:"redirects"`
	}
	readJSON(t, filepath.Join(cfg.Build.OutputDir, "redirects.json"), &vercel)
	assert.Len(t, vercel.Redirects, result.Redirects)

	var manifest Manifest
	readJSON(t, filepath.Join(cfg.Build.OutputDir, ManifestFile), &manifest)
	assert.Equal(t, result.ID, manifest.BuildID)
	assert.Equal(t, config.EnvDevelopment, manifest.Environment)
	assert.Equal(t, result.Collections, manifest.Collections)
}

func TestBuildService_RedirectsOnly(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.Redirects.Format = string(redirects.FormatYAML)
	svc := NewBuildService(cfg, nil, WithLoaders(staticLoader{name: "alpha", err: errors.New("must not run")}))

	result, err := svc.Build(context.Background(), BuildOptions{RedirectsOnly: true})
	require.NoError(t, err)
	assert.Empty(t, result.Collections)

	assert.FileExists(t, filepath.Join(cfg.Build.OutputDir, "redirects.yml"))
	assert.NoDirExists(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir))
	assert.NoFileExists(t, filepath.Join(cfg.Build.OutputDir, ManifestFile))
}

func TestBuildService_LoaderFailure(t *testing.T) {
	cfg := createTestConfig(t)
	upstream := errors.New("502 Bad Gateway")
	svc := NewBuildService(cfg, nil, WithLoaders(
		staticLoader{name: "good", items: []string{"x"}},
		staticLoader{name: "bad", err: upstream},
	))

	result, err := svc.Build(context.Background(), BuildOptions{})
	require.Error(t, err)
	require.NotNil(t, result)

	assert.True(t, siteerrors.HasCode(err, siteerrors.ErrCodeLoaderFailed))
	assert.ErrorIs(t, err, upstream)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bad", result.Errors[0].Component)
	var loaderErr *siteerrors.SiteError
	require.ErrorAs(t, result.Errors[0].Cause, &loaderErr)
	assert.Equal(t, "bad", loaderErr.Component)
	assert.Equal(t, siteerrors.ErrorTypeBuild, loaderErr.Type)
	assert.ErrorIs(t, result.Errors[0].Cause, upstream)

	assert.FileExists(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir, "good.json"))
	assert.NoFileExists(t, filepath.Join(cfg.Build.OutputDir, ManifestFile))
}

func TestBuildService_ErrorCodes(t *testing.T) {
	cfg := createTestConfig(t)
	dir := t.TempDir()
	cfg.Errors.DescriptorsFile = writeFile(t, filepath.Join(dir, "descriptors.json"), descriptorsJSON)
	cfg.Errors.MarkdownFile = filepath.Join(dir, "errors.md")
	cfg.Redirects.Format = string(redirects.FormatMap)

	svc := NewBuildService(cfg, nil, WithLoaders())
	result, err := svc.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, builtinRedirectCount(t)+1, result.Redirects)

	var table map[string]redirects.Target
	readJSON(t, filepath.Join(cfg.Build.OutputDir, "redirects.json"), &table)
	assert.Equal(t, "/docs/reference/errors#hhe1-you-are-not-inside-a-hardhat-project", table["/hhe1"].Destination)

	md, err := os.ReadFile(cfg.Errors.MarkdownFile)
	require.NoError(t, err)
	assert.Contains(t, string(md), "#### HHE1: You are not inside a Hardhat project")
}

func TestBuildService_ExtraRedirects(t *testing.T) {
	tests := []struct {
		name    string
		list    string
		code    string
		wantErr bool
	}{
		{
			name: "new sources",
			list: "name: campaign\nredirects:\n  - [\"/summit\", \"/docs/summit\"]\n",
		},
		{
			name:    "collides with a built-in",
			list:    "name: campaign\nredirects:\n  - [\"/errors\", \"/elsewhere\"]\n",
			code:    siteerrors.ErrCodeRedirectCollision,
			wantErr: true,
		},
		{
			name:    "malformed",
			list:    "name: campaign\nredirects:\n  - [\"/only-source\"]\n",
			code:    siteerrors.ErrCodeRedirectInvalid,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := createTestConfig(t)
			cfg.Redirects.ExtraFiles = []string{writeFile(t, filepath.Join(t.TempDir(), "extra.yml"), tt.list)}

			svc := NewBuildService(cfg, nil, WithLoaders())
			result, err := svc.Build(context.Background(), BuildOptions{RedirectsOnly: true})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, siteerrors.HasCode(err, tt.code), err.Error())
				if tt.code == siteerrors.ErrCodeRedirectCollision {
					var collision *redirects.CollisionError
					require.ErrorAs(t, err, &collision)
					assert.Equal(t, "/errors", collision.Source)
					assert.Equal(t, "campaign", collision.ConflictList)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, builtinRedirectCount(t)+1, result.Redirects)
		})
	}
}

func TestBuildService_Clean(t *testing.T) {
	cfg := createTestConfig(t)
	out := cfg.Build.OutputDir
	stale := writeFile(t, filepath.Join(out, CollectionsDir, "stale.json"), "[]")
	keep := writeFile(t, filepath.Join(out, "README.md"), "hand written")

	svc := NewBuildService(cfg, nil, WithLoaders(staticLoader{name: "alpha"}))
	_, err := svc.Build(context.Background(), BuildOptions{Clean: true})
	require.NoError(t, err)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, keep)
	assert.FileExists(t, filepath.Join(out, CollectionsDir, "alpha.json"))
}

func TestBuildService_OutputDirOverride(t *testing.T) {
	cfg := createTestConfig(t)
	override := filepath.Join(t.TempDir(), "dist")

	svc := NewBuildService(cfg, nil, WithLoaders())
	_, err := svc.Build(context.Background(), BuildOptions{OutputDir: override})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(override, "redirects.json"))
	assert.NoDirExists(t, cfg.Build.OutputDir)
}

func readmeTarball(t *testing.T, readme string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "package/README.md",
		Mode:     0o644,
		Size:     int64(len(readme)),
		Typeflag: tar.TypeReg,
	}))
	_, err := tw.Write([]byte(readme))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestBuildService_EndToEnd(t *testing.T) {
	tarball := readmeTarball(t, "# hardhat-mocha\n\nRun tests with Mocha.\n")

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tarballs/hardhat-mocha.tgz":
			w.Write(tarball)
		case strings.HasPrefix(r.URL.Path, "/downloads/last-month/"):
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"downloads": 1234, "package": "hardhat-gas-reporter"}`))
		case r.URL.EscapedPath() == "/@nomicfoundation%2Fhardhat-mocha":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"name":      "@nomicfoundation/hardhat-mocha",
				"dist-tags": map[string]string{"latest": "3.0.0"},
				"versions": map[string]any{
					"3.0.0": map[string]any{
						"version": "3.0.0",
						"dist":    map[string]string{"tarball": server.URL + "/tarballs/hardhat-mocha.tgz"},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	cfg := createTestConfig(t)
	dir := t.TempDir()
	cfg.Registry.URL = server.URL
	cfg.Registry.DownloadsURL = server.URL + "/downloads"
	cfg.Plugins.OfficialFile = writeFile(t, filepath.Join(dir, "official.yml"), `plugins:
  - npmPackage: "@nomicfoundation/hardhat-mocha"
    description: Mocha test runner
    tags: [test]
`)
	cfg.Plugins.CommunityFile = writeFile(t, filepath.Join(dir, "community.yml"), `plugins:
  - name: hardhat-gas-reporter
    author: cgewecke
    authorUrl: https://github.com/cgewecke
    description: Gas usage per unit test
    tags: [gas]
`)

	svc := NewBuildService(cfg, nil, WithHTTPClient(server.Client()))
	result, err := svc.Build(context.Background(), BuildOptions{})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		content.CollectionCommunityPlugins: 1,
		content.CollectionOfficialPlugins:  1,
		content.CollectionGitHubReleases:   0,
		content.CollectionBlogPosts:        0,
		content.CollectionErrors:           0,
	}, result.Collections)

	var official []content.OfficialPluginRecord
	readJSON(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir, content.CollectionOfficialPlugins+".json"), &official)
	require.Len(t, official, 1)
	assert.Equal(t, "hardhat-mocha", official[0].Slug)
	assert.Equal(t, "Run tests with Mocha.", strings.TrimSpace(official[0].ReadmeMd))

	var community []content.PluginRecord
	readJSON(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir, content.CollectionCommunityPlugins+".json"), &community)
	require.Len(t, community, 1)
	assert.Equal(t, int64(1234), community[0].Downloads)

	var releases []content.Release
	readJSON(t, filepath.Join(cfg.Build.OutputDir, CollectionsDir, content.CollectionGitHubReleases+".json"), &releases)
	assert.Empty(t, releases)
}
