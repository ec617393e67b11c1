// Package internal contains the implementation packages of sitedata.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - redirects: named redirect lists and the collision-checked aggregate table
//   - cache: TTL cache over file, LevelDB, Redis and in-memory stores
//   - fetch: HTTP client construction and JSON GET helpers
//   - npm: registry metadata, download counts and README tarball extraction
//   - content: the remote-backed content loaders and the error reference
//   - services: one build, from redirect aggregation to collection output
//   - config: viper-backed configuration and its validation
//   - errors: structured errors and the build error collector
//   - logging: the slog-backed structured logger
//   - slug: heading slugs shared with the site's renderer
//   - validation: URL and redirect path validation
//   - watcher: debounced file watching for the watch command
//   - version: build information of the binary
//
// # Data Flow
//
// The cmd package loads a config.Config and hands it to
// services.BuildService. The build assembles redirects first, since every
// other output depends on the site's URL layout, then runs the content
// loaders concurrently. Loaders take their environment explicitly and never
// read process environment variables.
package internal
