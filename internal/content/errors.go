package content

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/redirects"
	"github.com/nomicfoundation/sitedata/internal/slug"
)

// ErrorsPagePath is the docs page listing every error code.
const ErrorsPagePath = "/docs/reference/errors"

// ErrorDescriptors is the published error catalogue: packages with their
// category ranges, and the errors of each category.
type ErrorDescriptors struct {
	Categories map[string]PackageRange                          `json:"ERROR_CATEGORIES"`
	Errors     map[string]map[string]map[string]ErrorDescriptor `json:"ERRORS"`
}

// PackageRange is the error number range owned by one package.
type PackageRange struct {
	Min          int                      `json:"min"`
	Max          int                      `json:"max"`
	PluginID     string                   `json:"pluginId,omitempty"`
	WebsiteTitle string                   `json:"websiteTitle"`
	Categories   map[string]CategoryRange `json:"CATEGORIES"`
}

// CategoryRange is a sub-range of a package's errors.
type CategoryRange struct {
	Min             int    `json:"min"`
	Max             int    `json:"max"`
	WebsiteSubTitle string `json:"websiteSubTitle"`
}

// ErrorDescriptor documents one error code.
type ErrorDescriptor struct {
	Number             int    `json:"number"`
	WebsiteTitle       string `json:"websiteTitle"`
	WebsiteDescription string `json:"websiteDescription"`
}

// ErrorPackage is the reference section of one package.
type ErrorPackage struct {
	Subtitle   string          `json:"subtitle"`
	Categories []ErrorCategory `json:"categories"`
}

// ErrorCategory groups the errors of one range.
type ErrorCategory struct {
	Subtitle string     `json:"subtitle"`
	Errors   []ErrorRef `json:"errors"`
}

// ErrorRef is one documented error.
type ErrorRef struct {
	Code        int    `json:"code"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ParseErrorDescriptors decodes the descriptors JSON document.
func ParseErrorDescriptors(r io.Reader) (*ErrorDescriptors, error) {
	var d ErrorDescriptors
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeSchema, "invalid error descriptors")
	}
	if d.Categories == nil {
		return nil, siteerrors.NewValidationError(siteerrors.ErrCodeSchema, "error descriptors have no ERROR_CATEGORIES")
	}
	return &d, nil
}

// LoadErrorDescriptorsFile reads the descriptors from disk. An empty path
// yields an empty catalogue.
func LoadErrorDescriptorsFile(path string) (*ErrorDescriptors, error) {
	if path == "" {
		return &ErrorDescriptors{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, siteerrors.WrapIO(err, siteerrors.ErrCodeFileNotFound, "cannot open error descriptors")
	}
	defer f.Close()
	return ParseErrorDescriptors(f)
}

// Reference builds the error reference, packages and categories ordered by
// their range minimum and errors by number.
func (d *ErrorDescriptors) Reference() []ErrorPackage {
	pkgNames := sortedKeys(d.Categories, func(a, b string) bool {
		return d.Categories[a].Min < d.Categories[b].Min
	})

	out := make([]ErrorPackage, 0, len(pkgNames))
	for _, pkgName := range pkgNames {
		pkg := d.Categories[pkgName]
		section := ErrorPackage{
			Subtitle:   pkg.WebsiteTitle + " errors",
			Categories: []ErrorCategory{},
		}

		catNames := sortedKeys(pkg.Categories, func(a, b string) bool {
			return pkg.Categories[a].Min < pkg.Categories[b].Min
		})
		for _, catName := range catNames {
			cat := ErrorCategory{Subtitle: pkg.Categories[catName].WebsiteSubTitle, Errors: []ErrorRef{}}

			descs := make([]ErrorDescriptor, 0)
			for _, e := range d.Errors[pkgName][catName] {
				descs = append(descs, e)
			}
			sort.Slice(descs, func(i, j int) bool { return descs[i].Number < descs[j].Number })

			for _, e := range descs {
				title := fmt.Sprintf("HHE%d: %s", e.Number, e.WebsiteTitle)
				cat.Errors = append(cat.Errors, ErrorRef{
					Code:        e.Number,
					Slug:        slug.Make(title),
					Title:       title,
					Description: e.WebsiteDescription,
				})
			}
			section.Categories = append(section.Categories, cat)
		}
		out = append(out, section)
	}
	return out
}

// ErrorRedirects returns the error-codes redirect list: /hhe<n> points at the
// error's anchor on the errors page.
func ErrorRedirects(ref []ErrorPackage) redirects.List {
	l := redirects.List{Name: redirects.ListErrorCodes}
	for _, pkg := range ref {
		for _, cat := range pkg.Categories {
			for _, e := range cat.Errors {
				l.Entries = append(l.Entries, redirects.Entry{
					Source:      fmt.Sprintf("/hhe%d", e.Code),
					Destination: ErrorsPagePath + "#" + e.Slug,
				})
			}
		}
	}
	return l
}

// WriteErrorsMarkdown renders the reference as a markdown page.
func WriteErrorsMarkdown(w io.Writer, ref []ErrorPackage) error {
	var b strings.Builder
	b.WriteString("# Hardhat errors\n\n")
	b.WriteString("This section contains a list of all the possible errors you may encounter when\n")
	b.WriteString("using Hardhat and an explanation of each of them.\n")
	for _, pkg := range ref {
		fmt.Fprintf(&b, "\n## %s\n", pkg.Subtitle)
		for _, cat := range pkg.Categories {
			fmt.Fprintf(&b, "\n### %s\n", cat.Subtitle)
			for _, e := range cat.Errors {
				fmt.Fprintf(&b, "\n#### %s\n\n%s\n", e.Title, strings.TrimSpace(e.Description))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// ErrorsLoader publishes the error reference collection.
type ErrorsLoader struct {
	Descriptors *ErrorDescriptors
	Logger      logging.Logger
}

func (l *ErrorsLoader) Name() string { return CollectionErrors }

func (l *ErrorsLoader) Load(ctx context.Context) (Collection, error) {
	if l.Descriptors == nil || len(l.Descriptors.Categories) == 0 {
		if l.Logger != nil {
			l.Logger.Warn(ctx, nil, "No error descriptors configured, error reference is empty")
		}
		return collectionOf(l.Name(), []ErrorPackage(nil)), nil
	}
	ref := l.Descriptors.Reference()
	return collectionOf(l.Name(), ref), nil
}

func sortedKeys[V any](m map[string]V, less func(a, b string) bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if less(keys[i], keys[j]) {
			return true
		}
		if less(keys[j], keys[i]) {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}
