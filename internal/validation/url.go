// Package validation holds the URL and path checks shared by configuration
// loading and redirect list validation.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// ValidateURL validates an absolute http(s) URL such as an API endpoint or an
// external redirect destination
func ValidateURL(rawURL string) error {
	if err := rejectControl(rawURL); err != nil {
		return err
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// Only allow http/https schemes to prevent protocol handlers
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}

	return nil
}

// ValidateSitePath validates a site-relative path such as /docs/getting-started
// or /docs/plugins/hardhat-ethers#library-linking
func ValidateSitePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path %q must start with /", path)
	}
	if strings.HasPrefix(path, "//") {
		return fmt.Errorf("path %q is protocol-relative", path)
	}
	if err := rejectControl(path); err != nil {
		return err
	}

	parsed, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	if parsed.Scheme != "" || parsed.Host != "" {
		return fmt.Errorf("path %q must not carry a scheme or host", path)
	}

	return nil
}

// ValidateRedirectDestination accepts either a site-relative path or an
// absolute http(s) URL
func ValidateRedirectDestination(dest string) error {
	if strings.HasPrefix(dest, "/") {
		return ValidateSitePath(dest)
	}
	if err := ValidateURL(dest); err != nil {
		return fmt.Errorf("destination %q is neither a site path nor an http(s) URL: %w", dest, err)
	}
	return nil
}

// IsExternal reports whether a redirect destination leaves the site
func IsExternal(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://")
}

func rejectControl(s string) error {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("value %q contains whitespace or control characters", s)
		}
	}
	return nil
}
