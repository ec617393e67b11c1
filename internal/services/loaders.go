package services

import (
	"net/http"
	"os"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/content"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/fetch"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/npm"
)

// NewHTTPClient returns the shared upstream client for cfg.
func NewHTTPClient(cfg config.HTTPConfig) *http.Client {
	return fetch.New(fetch.Config{
		Timeout:    cfg.Timeout,
		UserAgent:  cfg.UserAgent,
		PreferIPv4: cfg.PreferIPv4,
	})
}

// NewNpmClient returns a registry client for cfg.
func NewNpmClient(httpClient *http.Client, cfg config.RegistryConfig) *npm.Client {
	return npm.NewClient(httpClient,
		npm.WithRegistryURL(cfg.URL),
		npm.WithDownloadsURL(cfg.DownloadsURL),
	)
}

// LoadErrorDescriptors reads the configured error descriptors, or returns an
// empty catalogue when none is configured.
func LoadErrorDescriptors(cfg *config.Config) (*content.ErrorDescriptors, error) {
	return content.LoadErrorDescriptorsFile(cfg.Errors.DescriptorsFile)
}

// Loaders builds the content loaders of a build.
func Loaders(cfg *config.Config, httpClient *http.Client, caches *Caches,
	descriptors *content.ErrorDescriptors, logger logging.Logger) ([]content.Loader, error) {
	env := cfg.ContentEnvironment()
	registry := NewNpmClient(httpClient, cfg.Registry)

	var community []content.CommunityPlugin
	if cfg.Plugins.CommunityFile != "" {
		plugins, err := content.LoadCommunityPluginsFile(cfg.Plugins.CommunityFile)
		if err != nil {
			return nil, err
		}
		community = plugins
	}

	official, err := officialPlugins(cfg.Plugins.OfficialFile)
	if err != nil {
		return nil, err
	}

	return []content.Loader{
		&content.CommunityPluginsLoader{
			Plugins:     community,
			Counter:     registry,
			Cache:       caches.Downloads,
			Concurrency: cfg.Build.Concurrency,
			Logger:      logger.WithComponent(content.CollectionCommunityPlugins),
		},
		&content.OfficialPluginsLoader{
			Plugins:     official,
			Readmes:     registry,
			Cache:       caches.Readmes,
			Tag:         cfg.Registry.Tag,
			Scope:       cfg.Plugins.OfficialScope,
			Concurrency: cfg.Build.Concurrency,
			Logger:      logger.WithComponent(content.CollectionOfficialPlugins),
		},
		&content.ReleasesLoader{
			Client:    httpClient,
			URL:       cfg.GitHub.ReleasesURL,
			Token:     cfg.GitHub.Token,
			TagPrefix: cfg.GitHub.TagPrefix,
			Limit:     cfg.GitHub.Limit,
			Env:       env,
			Logger:    logger.WithComponent(content.CollectionGitHubReleases),
		},
		&content.BlogLoader{
			Client:     httpClient,
			ContentURL: cfg.Blog.ContentURL,
			APIKey:     cfg.Blog.APIKey,
			Tags:       cfg.Blog.Tags,
			Limit:      cfg.Blog.Limit,
			Env:        env,
			Logger:     logger.WithComponent(content.CollectionBlogPosts),
		},
		&content.ErrorsLoader{
			Descriptors: descriptors,
			Logger:      logger.WithComponent(content.CollectionErrors),
		},
	}, nil
}

func officialPlugins(path string) ([]content.OfficialPlugin, error) {
	if path == "" {
		return content.BuiltinOfficialPlugins()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, siteerrors.WrapIO(err, siteerrors.ErrCodeFileNotFound, "cannot open official plugin list")
	}
	defer f.Close()
	return content.ParseOfficialPlugins(f)
}
