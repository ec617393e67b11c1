package services

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/nomicfoundation/sitedata/internal/cache"
	"github.com/nomicfoundation/sitedata/internal/config"
	"github.com/nomicfoundation/sitedata/internal/logging"
)

// Cache namespaces, one per cached concern.
const (
	NamespaceReadmes   = "readmes"
	NamespaceDownloads = "downloads"
)

// Caches holds the TTL caches of one build over the configured backend.
type Caches struct {
	Readmes   *cache.TTLCache
	Downloads *cache.TTLCache

	maintainers map[string]cache.Maintainer
	closers     []io.Closer
}

// OpenCaches opens the cache backend selected by cfg.Backend.
func OpenCaches(cfg config.CacheConfig, logger logging.Logger) (*Caches, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Caches{maintainers: make(map[string]cache.Maintainer)}

	var readmes, downloads cache.Store
	switch cfg.Backend {
	case config.CacheFile, "":
		r := cache.NewFileStore(cfg.Dir, "readmeContent")
		readmes = r
		downloads = cache.NewFileStore(cfg.Dir, "downloads")
		// both concerns share the directory; listing one store lists every file
		c.maintainers[cfg.Dir] = r
	case config.CacheLevelDB:
		db, err := cache.OpenLevelDBStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, db)
		r, d := db.Namespace(NamespaceReadmes), db.Namespace(NamespaceDownloads)
		readmes, downloads = r, d
		c.maintainers[NamespaceReadmes] = r
		c.maintainers[NamespaceDownloads] = d
	case config.CacheRedis:
		client, err := cache.ConnectRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client)
		r := cache.NewRedisStore(client, NamespaceReadmes, 0)
		d := cache.NewRedisStore(client, NamespaceDownloads, 0)
		readmes, downloads = r, d
		c.maintainers[NamespaceReadmes] = r
		c.maintainers[NamespaceDownloads] = d
	case config.CacheMemory:
		r, d := cache.NewMemoryStore(), cache.NewMemoryStore()
		readmes, downloads = r, d
		c.maintainers[NamespaceReadmes] = r
		c.maintainers[NamespaceDownloads] = d
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	cacheLogger := logger.WithComponent("cache")
	c.Readmes = cache.NewTTLCache(readmes, cfg.ReadmeTTL, cache.WithLogger(cacheLogger))
	c.Downloads = cache.NewTTLCache(downloads, cfg.DownloadsTTL, cache.WithLogger(cacheLogger))
	return c, nil
}

// Names returns the maintainable store names in sorted order.
func (c *Caches) Names() []string {
	names := make([]string, 0, len(c.maintainers))
	for name := range c.maintainers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Maintainer returns the store registered under name.
func (c *Caches) Maintainer(name string) (cache.Maintainer, bool) {
	m, ok := c.maintainers[name]
	return m, ok
}

// Close releases database handles and connections.
func (c *Caches) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
