package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"github.com/nomicfoundation/sitedata/internal/cache"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/npm"
	"github.com/nomicfoundation/sitedata/internal/slug"
)

// CommunityPlugin is one entry of the community plugin list file.
type CommunityPlugin struct {
	Name        string   `yaml:"name"`
	Website     string   `yaml:"website,omitempty"`
	NpmPackage  string   `yaml:"npmPackage,omitempty"`
	Author      string   `yaml:"author"`
	AuthorURL   string   `yaml:"authorUrl"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// Package returns the npm package of the plugin, which defaults to its name.
func (p CommunityPlugin) Package() string {
	if p.NpmPackage != "" {
		return p.NpmPackage
	}
	return p.Name
}

func (p CommunityPlugin) validate() error {
	var missing []string
	for field, v := range map[string]string{
		"name":        p.Name,
		"author":      p.Author,
		"authorUrl":   p.AuthorURL,
		"description": p.Description,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if p.Tags == nil {
		missing = append(missing, "tags")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// PluginRecord is a community plugin as published to the site.
type PluginRecord struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	NpmPackage  string   `json:"npmPackage"`
	Website     string   `json:"website"`
	Author      string   `json:"author"`
	AuthorURL   string   `json:"authorUrl"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Downloads   int64    `json:"downloads"`
}

// ParseCommunityPlugins reads a plugin list document:
//
//	plugins:
//	  - name: hardhat-gas-reporter
//	    author: ...
func ParseCommunityPlugins(r io.Reader) ([]CommunityPlugin, error) {
	var doc struct {
		Plugins []CommunityPlugin `yaml:"plugins"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema, "invalid community plugin list")
	}

	for i, p := range doc.Plugins {
		if err := p.validate(); err != nil {
			return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema,
				fmt.Sprintf("community plugin #%d (%q)", i+1, p.Name))
		}
	}
	return doc.Plugins, nil
}

// LoadCommunityPluginsFile reads a plugin list from disk.
func LoadCommunityPluginsFile(path string) ([]CommunityPlugin, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, siteerrors.WrapIO(err, siteerrors.ErrCodeFileNotFound, "cannot open community plugin list")
	}
	defer f.Close()
	return ParseCommunityPlugins(f)
}

// DownloadCounter reports last-month npm downloads of a package.
type DownloadCounter interface {
	LastMonthDownloads(ctx context.Context, pkg string) (int64, error)
}

// CommunityPluginsLoader resolves the download counts of every community
// plugin and orders the plugins by popularity.
type CommunityPluginsLoader struct {
	Plugins     []CommunityPlugin
	Counter     DownloadCounter
	Cache       *cache.TTLCache
	Concurrency int
	Logger      logging.Logger
}

func (l *CommunityPluginsLoader) Name() string { return CollectionCommunityPlugins }

func (l *CommunityPluginsLoader) Load(ctx context.Context) (Collection, error) {
	records, err := l.Resolve(ctx)
	if err != nil {
		return Collection{}, err
	}
	return collectionOf(l.Name(), records), nil
}

// Resolve returns the plugin records sorted by downloads, highest first, then
// by name.
func (l *CommunityPluginsLoader) Resolve(ctx context.Context) ([]PluginRecord, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	slugger := slug.NewSlugger()
	records := make([]PluginRecord, len(l.Plugins))
	for i, p := range l.Plugins {
		pkg := p.Package()
		website := p.Website
		if website == "" {
			website = "https://www.npmjs.com/package/" + pkg
		}
		records[i] = PluginRecord{
			ID:          p.Name,
			Slug:        slugger.Slug(p.Name),
			Name:        p.Name,
			NpmPackage:  pkg,
			Website:     website,
			Author:      p.Author,
			AuthorURL:   p.AuthorURL,
			Description: p.Description,
			Tags:        p.Tags,
		}
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(max(1, l.Concurrency)).WithCancelOnError().WithFirstError()
	for i := range records {
		rec := &records[i]
		p.Go(func(ctx context.Context) error {
			n, err := l.downloads(ctx, rec.NpmPackage)
			if errors.Is(err, npm.ErrRateLimited) {
				logger.Warn(ctx, err, "npm downloads API rate limited", "package", rec.NpmPackage)
				return siteerrors.WrapUpstream(err, siteerrors.ErrCodeRateLimited,
					"npm rate limited the download count of "+rec.NpmPackage)
			}
			if err != nil {
				return siteerrors.WrapUpstream(err, siteerrors.ErrCodeUpstreamStatus,
					"error fetching npm downloads of plugin "+rec.Name)
			}
			rec.Downloads = n
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Downloads != records[j].Downloads {
			return records[i].Downloads > records[j].Downloads
		}
		return records[i].Name < records[j].Name
	})

	logger.Info(ctx, "Resolved community plugins", "count", len(records))
	return records, nil
}

func (l *CommunityPluginsLoader) downloads(ctx context.Context, pkg string) (int64, error) {
	if l.Cache == nil {
		return l.Counter.LastMonthDownloads(ctx, pkg)
	}
	return cache.Fetch(ctx, l.Cache, pkg+"-downloads", func(ctx context.Context) (int64, error) {
		return l.Counter.LastMonthDownloads(ctx, pkg)
	})
}
