package content

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"github.com/nomicfoundation/sitedata/internal/cache"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/slug"
)

//go:embed data/official-plugins.yml
var officialPluginsYAML []byte

// DefaultOfficialScope is stripped from package names to form short names.
const DefaultOfficialScope = "@nomicfoundation/"

// OfficialPlugin is one entry of the official plugin list.
type OfficialPlugin struct {
	NpmPackage  string   `yaml:"npmPackage"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	// LinkToItsOwnWebsiteSection points the plugin list at a dedicated docs
	// section instead of the rendered README page.
	LinkToItsOwnWebsiteSection string `yaml:"linkToItsOwnWebsiteSection,omitempty"`
}

// OfficialPluginRecord is an official plugin as published to the site.
type OfficialPluginRecord struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	ShortName   string   `json:"shortName"`
	Website     string   `json:"website"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	ReadmeMd    string   `json:"readmeMd"`
}

// ParseOfficialPlugins reads an official plugin list document.
func ParseOfficialPlugins(r io.Reader) ([]OfficialPlugin, error) {
	var doc struct {
		Plugins []OfficialPlugin `yaml:"plugins"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema, "invalid official plugin list")
	}
	for i, p := range doc.Plugins {
		if p.NpmPackage == "" || p.Description == "" {
			return nil, siteerrors.NewValidationError(siteerrors.ErrCodeSchema,
				fmt.Sprintf("official plugin #%d needs npmPackage and description", i+1))
		}
	}
	return doc.Plugins, nil
}

// BuiltinOfficialPlugins returns the embedded official plugin list.
func BuiltinOfficialPlugins() ([]OfficialPlugin, error) {
	return ParseOfficialPlugins(bytes.NewReader(officialPluginsYAML))
}

// ReadmeFetcher returns the README of an npm package at a dist-tag.
type ReadmeFetcher interface {
	Readme(ctx context.Context, pkg, tag string) (string, error)
}

// OfficialPluginsLoader fetches the README of every official plugin.
type OfficialPluginsLoader struct {
	Plugins     []OfficialPlugin
	Readmes     ReadmeFetcher
	Cache       *cache.TTLCache
	Tag         string
	Scope       string
	Concurrency int
	Logger      logging.Logger
}

func (l *OfficialPluginsLoader) Name() string { return CollectionOfficialPlugins }

func (l *OfficialPluginsLoader) Load(ctx context.Context) (Collection, error) {
	records, err := l.Resolve(ctx)
	if err != nil {
		return Collection{}, err
	}
	return collectionOf(l.Name(), records), nil
}

// Resolve returns the records in list order.
func (l *OfficialPluginsLoader) Resolve(ctx context.Context) ([]OfficialPluginRecord, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	scope := l.Scope
	if scope == "" {
		scope = DefaultOfficialScope
	}
	tag := l.Tag
	if tag == "" {
		tag = "latest"
	}

	records := make([]OfficialPluginRecord, len(l.Plugins))
	for i, p := range l.Plugins {
		short := strings.TrimPrefix(p.NpmPackage, scope)
		s := slug.Make(short)
		website := p.LinkToItsOwnWebsiteSection
		if website == "" {
			website = "/docs/plugins/" + s
		}
		records[i] = OfficialPluginRecord{
			ID:          s,
			Slug:        s,
			Name:        p.NpmPackage,
			ShortName:   short,
			Website:     website,
			Description: p.Description,
			Tags:        p.Tags,
		}
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(max(1, l.Concurrency)).WithCancelOnError().WithFirstError()
	for i := range records {
		rec := &records[i]
		p.Go(func(ctx context.Context) error {
			readme, err := l.readme(ctx, rec.Name, tag, logger)
			if err != nil {
				return siteerrors.WrapUpstream(err, siteerrors.ErrCodeReadmeNotFound,
					"cannot load README of official plugin "+rec.Name)
			}
			rec.ReadmeMd = readme
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (l *OfficialPluginsLoader) readme(ctx context.Context, pkg, tag string, logger logging.Logger) (string, error) {
	produce := func(ctx context.Context) (string, error) {
		logger.Info(ctx, "Fetching readme of official plugin", "package", pkg, "tag", tag)
		readme, err := l.Readmes.Readme(ctx, pkg, tag)
		if err != nil {
			return "", err
		}
		return StripFirstHeading(readme), nil
	}
	if l.Cache == nil {
		return produce(ctx)
	}
	return cache.Fetch(ctx, l.Cache, pkg+"-README", produce)
}

var firstHeading = regexp.MustCompile(`(?m)^\s*#.*$`)

// StripFirstHeading removes the first markdown heading line, since the site
// renders the page title itself.
func StripFirstHeading(md string) string {
	loc := firstHeading.FindStringIndex(md)
	if loc == nil {
		return md
	}
	return md[:loc[0]] + md[loc[1]:]
}
