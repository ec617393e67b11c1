// Package services implements the site-data build: aggregating redirects,
// running the content loaders and writing their output for the site.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/content"
	siteerrors "github.com/nomicfoundation/sitedata/internal/errors"
	"github.com/nomicfoundation/sitedata/internal/logging"
	"github.com/nomicfoundation/sitedata/internal/redirects"
)

// Output layout, relative to the build output directory.
const (
	CollectionsDir = "collections"
	ManifestFile   = "manifest.json"
)

// BuildService runs site-data builds
type BuildService struct {
	config     *config.Config
	logger     logging.Logger
	httpClient *http.Client
	caches     *Caches
	loaders    []content.Loader
	now        func() time.Time
}

// BuildServiceOption configures a BuildService.
type BuildServiceOption func(*BuildService)

// WithHTTPClient sets the upstream HTTP client.
func WithHTTPClient(c *http.Client) BuildServiceOption {
	return func(s *BuildService) { s.httpClient = c }
}

// WithCaches reuses already opened caches. The caller keeps ownership.
func WithCaches(c *Caches) BuildServiceOption {
	return func(s *BuildService) { s.caches = c }
}

// WithLoaders replaces the configured loaders. With no arguments the build
// runs no loaders at all.
func WithLoaders(loaders ...content.Loader) BuildServiceOption {
	return func(s *BuildService) { s.loaders = append([]content.Loader{}, loaders...) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BuildServiceOption {
	return func(s *BuildService) { s.now = now }
}

// NewBuildService creates a new build service
func NewBuildService(cfg *config.Config, logger logging.Logger, opts ...BuildServiceOption) *BuildService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &BuildService{
		config: cfg,
		logger: logger.WithComponent("build"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildOptions contains options for the build process
type BuildOptions struct {
	// OutputDir overrides build.output_dir.
	OutputDir string
	// RedirectsOnly stops after writing the redirect table.
	RedirectsOnly bool
	// Clean removes previous output first.
	Clean bool
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	ID          string
	Duration    time.Duration
	Redirects   int
	Collections map[string]int
	Errors      []siteerrors.BuildError
}

// Manifest describes one build's output.
type Manifest struct {
	BuildID     string         `json:"buildId"`
	Environment string         `json:"environment"`
	StartedAt   time.Time      `json:"startedAt"`
	DurationMs  int64          `json:"durationMs"`
	Redirects   int            `json:"redirects"`
	Collections map[string]int `json:"collections"`
}

// Build performs the complete build process. Loader failures do not stop
// the other loaders; they are collected and fail the build at the end.
func (s *BuildService) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := s.now()
	result := &BuildResult{
		ID:          uuid.NewString(),
		Collections: make(map[string]int),
	}
	logger := s.logger.With("build_id", result.ID)

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = s.config.Build.OutputDir
	}
	if opts.Clean {
		if err := cleanOutput(outDir); err != nil {
			return nil, siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot clean output directory")
		}
	}

	descriptors, err := LoadErrorDescriptors(s.config)
	if err != nil {
		return nil, err
	}

	table, err := s.Redirects(descriptors)
	if err != nil {
		return nil, err
	}
	format, err := redirects.ParseFormat(s.config.Redirects.Format)
	if err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeConfigInvalid, "invalid redirects.format")
	}
	if err := WriteRedirects(filepath.Join(outDir, RedirectsFile(format)), table, format); err != nil {
		return nil, err
	}
	result.Redirects = table.Len()
	logger.Info(ctx, "Wrote redirects", "count", result.Redirects, "format", string(format))

	if opts.RedirectsOnly {
		result.Duration = s.now().Sub(start)
		return result, nil
	}

	if s.config.Errors.MarkdownFile != "" {
		if err := writeErrorsMarkdown(s.config.Errors.MarkdownFile, descriptors); err != nil {
			return nil, err
		}
	}

	loaders := s.loaders
	if loaders == nil {
		caches := s.caches
		if caches == nil {
			caches, err = OpenCaches(s.config.Cache, s.logger)
			if err != nil {
				return nil, siteerrors.WrapIO(err, siteerrors.ErrCodeConfigInvalid, "cannot open cache")
			}
			defer caches.Close()
		}
		httpClient := s.httpClient
		if httpClient == nil {
			httpClient = NewHTTPClient(s.config.HTTP)
		}
		loaders, err = Loaders(s.config, httpClient, caches, descriptors, s.logger)
		if err != nil {
			return nil, err
		}
	}

	collector := siteerrors.NewErrorCollector()
	var mu sync.Mutex
	p := pool.New().WithContext(ctx)
	for _, loader := range loaders {
		p.Go(func(ctx context.Context) error {
			n, err := s.runLoader(ctx, loader, outDir)
			if err != nil {
				logger.Error(ctx, err, "Loader failed", "collection", loader.Name())
				collector.AddError(loader.Name(), siteerrors.WrapBuild(err,
					siteerrors.ErrCodeLoaderFailed, "loading collection failed", loader.Name()))
				return nil
			}
			mu.Lock()
			result.Collections[loader.Name()] = n
			mu.Unlock()
			return nil
		})
	}
	_ = p.Wait()

	result.Duration = s.now().Sub(start)
	result.Errors = collector.GetErrors()
	if collector.HasErrors() {
		return result, siteerrors.NewBuildError(siteerrors.ErrCodeLoaderFailed,
			fmt.Sprintf("%d loader(s) failed", len(result.Errors)), collector.Err())
	}

	manifest := Manifest{
		BuildID:     result.ID,
		Environment: s.config.Environment,
		StartedAt:   start.UTC(),
		DurationMs:  result.Duration.Milliseconds(),
		Redirects:   result.Redirects,
		Collections: result.Collections,
	}
	if err := writeJSON(filepath.Join(outDir, ManifestFile), manifest); err != nil {
		return result, err
	}

	logger.Info(ctx, "Build complete", "duration", result.Duration, "collections", len(result.Collections))
	return result, nil
}

func (s *BuildService) runLoader(ctx context.Context, loader content.Loader, outDir string) (int, error) {
	collection, err := loader.Load(ctx)
	if err != nil {
		return 0, err
	}
	path := filepath.Join(outDir, CollectionsDir, collection.Name+".json")
	if err := writeJSON(path, collection.Items); err != nil {
		return 0, err
	}
	return collection.Count, nil
}

// Redirects assembles and aggregates every redirect list of the site.
func (s *BuildService) Redirects(descriptors *content.ErrorDescriptors) (*redirects.Table, error) {
	errorCodes := content.ErrorRedirects(descriptors.Reference())

	extra := make([]redirects.List, 0, len(s.config.Redirects.ExtraFiles))
	for _, path := range s.config.Redirects.ExtraFiles {
		l, err := redirects.LoadFile(path)
		if err != nil {
			return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeRedirectInvalid, "invalid redirect list "+path)
		}
		extra = append(extra, l)
	}

	lists, err := redirects.Assemble(errorCodes, extra...)
	if err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeRedirectInvalid, "invalid built-in redirect list")
	}
	table, err := redirects.Aggregate(lists...)
	if err != nil {
		return nil, siteerrors.WrapValidation(err, siteerrors.ErrCodeRedirectCollision, "redirects collide")
	}
	return table, nil
}

// RedirectsFile returns the output file name for format.
func RedirectsFile(format redirects.Format) string {
	if format == redirects.FormatYAML {
		return "redirects.yml"
	}
	return "redirects.json"
}

// WriteRedirects encodes table to path.
func WriteRedirects(path string, table *redirects.Table, format redirects.Format) error {
	var buf bytes.Buffer
	if err := table.Encode(&buf, format); err != nil {
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot encode redirects")
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeErrorsMarkdown(path string, descriptors *content.ErrorDescriptors) error {
	var buf bytes.Buffer
	if err := content.WriteErrorsMarkdown(&buf, descriptors.Reference()); err != nil {
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot render errors page")
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot encode "+filepath.Base(path))
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// writeFileAtomic replaces path so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot create "+dir)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot write "+path)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot write "+path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return siteerrors.WrapIO(err, siteerrors.ErrCodeWriteOutput, "cannot write "+path)
	}
	return nil
}

// cleanOutput removes the files a build writes, leaving anything else in the
// output directory alone.
func cleanOutput(outDir string) error {
	targets := []string{
		filepath.Join(outDir, CollectionsDir),
		filepath.Join(outDir, ManifestFile),
		filepath.Join(outDir, RedirectsFile(redirects.FormatMap)),
		filepath.Join(outDir, RedirectsFile(redirects.FormatYAML)),
	}
	for _, t := range targets {
		if err := os.RemoveAll(t); err != nil {
			return err
		}
	}
	return nil
}
