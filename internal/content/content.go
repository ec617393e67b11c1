// Package content loads the site's remote-backed content collections:
// community plugins with their npm download counts, official plugins with
// their README markdown, recent GitHub releases, recent blog posts and the
// error-code reference.
//
// Loaders never read process environment variables. Everything that changes
// their behaviour between local, preview and production builds is passed in
// through Environment and their own configuration.
package content

import (
	"context"
)

// Environment describes the kind of build a loader runs in.
type Environment struct {
	// Production is set for builds that are deployed.
	Production bool
	// ForceReleases fetches GitHub releases outside production builds.
	ForceReleases bool
}

// Collection is the output of one loader.
type Collection struct {
	Name  string
	Items any
	Count int
}

// Loader produces one named collection.
type Loader interface {
	Name() string
	Load(ctx context.Context) (Collection, error)
}

// Collection names, also used as output file names.
const (
	CollectionCommunityPlugins = "communityPlugins"
	CollectionOfficialPlugins  = "officialPlugins"
	CollectionGitHubReleases   = "githubReleases"
	CollectionBlogPosts        = "blogposts"
	CollectionErrors           = "hardhatErrors"
)

func collectionOf[T any](name string, items []T) Collection {
	if items == nil {
		items = []T{}
	}
	return Collection{Name: name, Items: items, Count: len(items)}
}
