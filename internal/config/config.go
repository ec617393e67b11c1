// Package config provides configuration management for sitedata using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration is read from .sitedata.yml (or the file named by
// --config), with SITEDATA_ environment overrides such as
// SITEDATA_BLOG_API_KEY for blog.api_key. It covers the build output, the
// remote-fetch cache, the upstream APIs (npm, GitHub, Ghost), the plugin
// lists and extra redirect files.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/nomicfoundation/sitedata/internal/content"
	"github.com/nomicfoundation/sitedata/internal/npm"
)

// Build environments.
const (
	EnvDevelopment = "development"
	EnvPreview     = "preview"
	EnvProduction  = "production"
)

// Cache backends.
const (
	CacheFile    = "file"
	CacheLevelDB = "leveldb"
	CacheRedis   = "redis"
	CacheMemory  = "memory"
)

type Config struct {
	Environment string          `mapstructure:"environment" yaml:"environment"`
	Build       BuildConfig     `mapstructure:"build" yaml:"build"`
	Log         LogConfig       `mapstructure:"log" yaml:"log"`
	HTTP        HTTPConfig      `mapstructure:"http" yaml:"http"`
	Cache       CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Registry    RegistryConfig  `mapstructure:"registry" yaml:"registry"`
	GitHub      GitHubConfig    `mapstructure:"github" yaml:"github"`
	Blog        BlogConfig      `mapstructure:"blog" yaml:"blog"`
	Plugins     PluginsConfig   `mapstructure:"plugins" yaml:"plugins"`
	Redirects   RedirectsConfig `mapstructure:"redirects" yaml:"redirects"`
	Errors      ErrorsConfig    `mapstructure:"errors" yaml:"errors"`
}

type BuildConfig struct {
	OutputDir   string   `mapstructure:"output_dir" yaml:"output_dir"`
	Concurrency int      `mapstructure:"concurrency" yaml:"concurrency"`
	Watch       []string `mapstructure:"watch" yaml:"watch"`
	Ignore      []string `mapstructure:"ignore" yaml:"ignore"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type HTTPConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
	PreferIPv4 bool          `mapstructure:"prefer_ipv4" yaml:"prefer_ipv4"`
}

type CacheConfig struct {
	Backend      string        `mapstructure:"backend" yaml:"backend"`
	Dir          string        `mapstructure:"dir" yaml:"dir"`
	RedisURL     string        `mapstructure:"redis_url" yaml:"redis_url"`
	ReadmeTTL    time.Duration `mapstructure:"readme_ttl" yaml:"readme_ttl"`
	DownloadsTTL time.Duration `mapstructure:"downloads_ttl" yaml:"downloads_ttl"`
}

type RegistryConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	DownloadsURL string `mapstructure:"downloads_url" yaml:"downloads_url"`
	Tag          string `mapstructure:"tag" yaml:"tag"`
}

type GitHubConfig struct {
	ReleasesURL   string `mapstructure:"releases_url" yaml:"releases_url"`
	TagPrefix     string `mapstructure:"tag_prefix" yaml:"tag_prefix"`
	Limit         int    `mapstructure:"limit" yaml:"limit"`
	Token         string `mapstructure:"token" yaml:"token"`
	ForceReleases bool   `mapstructure:"force_releases" yaml:"force_releases"`
}

type BlogConfig struct {
	ContentURL string   `mapstructure:"content_url" yaml:"content_url"`
	APIKey     string   `mapstructure:"api_key" yaml:"api_key"`
	Tags       []string `mapstructure:"tags" yaml:"tags"`
	Limit      int      `mapstructure:"limit" yaml:"limit"`
}

type PluginsConfig struct {
	CommunityFile string `mapstructure:"community_file" yaml:"community_file"`
	OfficialFile  string `mapstructure:"official_file" yaml:"official_file"`
	OfficialScope string `mapstructure:"official_scope" yaml:"official_scope"`
}

type RedirectsConfig struct {
	Format     string   `mapstructure:"format" yaml:"format"`
	ExtraFiles []string `mapstructure:"extra_files" yaml:"extra_files"`
}

type ErrorsConfig struct {
	DescriptorsFile string `mapstructure:"descriptors_file" yaml:"descriptors_file"`
	MarkdownFile    string `mapstructure:"markdown_file" yaml:"markdown_file"`
}

// SetDefaults registers every default with viper, which also makes each key
// overridable through its SITEDATA_ environment variable.
func SetDefaults() {
	viper.SetDefault("environment", EnvDevelopment)

	viper.SetDefault("build.output_dir", "src/generated")
	viper.SetDefault("build.concurrency", 3)
	viper.SetDefault("build.watch", []string{"redirects", ".sitedata.yml"})
	viper.SetDefault("build.ignore", []string{".git", "node_modules"})

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("http.timeout", 30*time.Second)
	viper.SetDefault("http.user_agent", "")
	viper.SetDefault("http.prefer_ipv4", true)

	viper.SetDefault("cache.backend", CacheFile)
	viper.SetDefault("cache.dir", "cache")
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.readme_ttl", 3*time.Hour)
	viper.SetDefault("cache.downloads_ttl", 12*time.Hour)

	viper.SetDefault("registry.url", npm.DefaultRegistryURL)
	viper.SetDefault("registry.downloads_url", npm.DefaultDownloadsURL)
	viper.SetDefault("registry.tag", "latest")

	viper.SetDefault("github.releases_url", content.DefaultReleasesURL)
	viper.SetDefault("github.tag_prefix", "hardhat@3.")
	viper.SetDefault("github.limit", 3)
	viper.SetDefault("github.token", "")
	viper.SetDefault("github.force_releases", false)

	viper.SetDefault("blog.content_url", "")
	viper.SetDefault("blog.api_key", "")

	viper.SetDefault("blog.tags", content.DefaultBlogTags)
	viper.SetDefault("blog.limit", 3)

	viper.SetDefault("plugins.community_file", "")
	viper.SetDefault("plugins.official_file", "")
	viper.SetDefault("plugins.official_scope", content.DefaultOfficialScope)

	viper.SetDefault("redirects.format", "vercel")
	viper.SetDefault("redirects.extra_files", []string{})

	viper.SetDefault("errors.descriptors_file", "")
	viper.SetDefault("errors.markdown_file", "")
}

// Load reads the configuration from viper, applies defaults and validates it.
func Load() (*Config, error) {
	SetDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ContentEnvironment returns the loader environment of this build. Preview
// deployments count as production: they are published too.
func (c *Config) ContentEnvironment() content.Environment {
	return content.Environment{
		Production:    c.Environment == EnvProduction || c.Environment == EnvPreview,
		ForceReleases: c.GitHub.ForceReleases,
	}
}
