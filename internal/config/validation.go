package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/redirects"
	"github.com/nomicfoundation/sitedata/internal/validation"
)

// ValidationError represents a configuration issue with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}
	write("Errors", vr.Errors)
	write("Warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// validateConfig returns the first validation error as a config error.
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if !result.HasErrors() {
		return nil
	}
	first := result.Errors[0]
	return siteerrors.NewConfigError(siteerrors.ErrCodeConfigInvalid, first.Error()).
		WithContext("field", first.Field)
}

// ValidateConfigWithDetails checks every section and collects errors and
// warnings. Warnings flag settings that work but are probably unintended.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	switch config.Environment {
	case EnvDevelopment, EnvPreview, EnvProduction:
	default:
		result.addError("environment", config.Environment,
			fmt.Sprintf("unknown environment %q", config.Environment),
			"Use one of development, preview or production")
	}

	validateBuildConfigDetails(&config.Build, result)
	validateLogConfigDetails(&config.Log, result)
	validateHTTPConfigDetails(&config.HTTP, result)
	validateCacheConfigDetails(&config.Cache, result)
	validateUpstreamDetails(config, result)
	validateFilesDetails(config, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if err := validateRelativePath(config.OutputDir); err != nil {
		result.addError("build.output_dir", config.OutputDir, err.Error(),
			"Use a relative directory inside the site project, e.g. src/generated")
	}
	if config.Concurrency < 1 || config.Concurrency > 16 {
		result.addError("build.concurrency", config.Concurrency,
			fmt.Sprintf("concurrency %d is not in range 1-16", config.Concurrency),
			"The npm APIs rate-limit aggressive clients; 3 is a safe value")
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(), "Use debug, info, warn or error")
	}
	if config.Format != "text" && config.Format != "json" {
		result.addError("log.format", config.Format, fmt.Sprintf("unknown log format %q", config.Format),
			"Use text or json")
	}
}

func validateHTTPConfigDetails(config *HTTPConfig, result *ValidationResult) {
	if config.Timeout <= 0 {
		result.addError("http.timeout", config.Timeout, "timeout must be positive")
	}
}

func validateCacheConfigDetails(config *CacheConfig, result *ValidationResult) {
	switch config.Backend {
	case CacheFile, CacheLevelDB:
		if err := validateRelativePath(config.Dir); err != nil {
			result.addError("cache.dir", config.Dir, err.Error(),
				"Keep the cache directory inside the project, e.g. cache")
		}
	case CacheRedis:
		if config.RedisURL == "" {
			result.addError("cache.redis_url", config.RedisURL, "redis backend needs cache.redis_url",
				"Set SITEDATA_CACHE_REDIS_URL=redis://host:6379/0")
		}
	case CacheMemory:
	default:
		result.addError("cache.backend", config.Backend, fmt.Sprintf("unknown cache backend %q", config.Backend),
			"Use file, leveldb, redis or memory")
	}

	if config.ReadmeTTL <= 0 {
		result.addError("cache.readme_ttl", config.ReadmeTTL, "ttl must be positive")
	}
	if config.DownloadsTTL <= 0 {
		result.addError("cache.downloads_ttl", config.DownloadsTTL, "ttl must be positive")
	}
}

func validateUpstreamDetails(config *Config, result *ValidationResult) {
	urls := map[string]string{
		"registry.url":           config.Registry.URL,
		"registry.downloads_url": config.Registry.DownloadsURL,
		"github.releases_url":    config.GitHub.ReleasesURL,
	}
	if config.Blog.ContentURL != "" {
		urls["blog.content_url"] = config.Blog.ContentURL
	}
	for _, field := range []string{"registry.url", "registry.downloads_url", "github.releases_url", "blog.content_url"} {
		u, ok := urls[field]
		if !ok {
			continue
		}
		if err := validation.ValidateURL(u); err != nil {
			result.addError(field, u, err.Error())
		}
	}

	if config.Registry.Tag == "" {
		result.addError("registry.tag", config.Registry.Tag, "dist-tag cannot be empty", "Use latest")
	}
	if config.GitHub.Limit < 1 {
		result.addError("github.limit", config.GitHub.Limit, "limit must be at least 1")
	}
	if config.Blog.Limit < 1 {
		result.addError("blog.limit", config.Blog.Limit, "limit must be at least 1")
	}

	if _, err := redirects.ParseFormat(config.Redirects.Format); err != nil {
		result.addError("redirects.format", config.Redirects.Format, err.Error())
	}

	if config.Environment != EnvDevelopment && (config.Blog.APIKey == "" || config.Blog.ContentURL == "") {
		result.addWarning("blog", nil, "blog credentials are not set; the blog loader will fail",
			"Set SITEDATA_BLOG_API_KEY and SITEDATA_BLOG_CONTENT_URL")
	}
}

func validateFilesDetails(config *Config, result *ValidationResult) {
	files := map[string]string{
		"plugins.community_file":  config.Plugins.CommunityFile,
		"plugins.official_file":   config.Plugins.OfficialFile,
		"errors.descriptors_file": config.Errors.DescriptorsFile,
	}
	for i, f := range config.Redirects.ExtraFiles {
		files[fmt.Sprintf("redirects.extra_files[%d]", i)] = f
	}

	for field, path := range files {
		if path == "" {
			continue
		}
		if err := validatePath(path); err != nil {
			result.addError(field, path, err.Error())
			continue
		}
		if !pathExists(path) {
			result.addWarning(field, path, fmt.Sprintf("file %s does not exist", path))
		}
	}

	if config.Errors.MarkdownFile != "" {
		if err := validateRelativePath(config.Errors.MarkdownFile); err != nil {
			result.addError("errors.markdown_file", config.Errors.MarkdownFile, err.Error())
		}
	}
}

// validateRelativePath accepts a non-empty relative path that stays inside
// the working directory.
func validateRelativePath(path string) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if filepath.IsAbs(filepath.Clean(path)) {
		return fmt.Errorf("path should be relative: %s", path)
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal: %s", path)
		}
	}

	if strings.ContainsAny(cleanPath, "\x00\n\r") {
		return fmt.Errorf("path contains control characters: %q", path)
	}

	return nil
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
