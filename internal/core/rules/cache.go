package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
)

const (
	DefaultTTL = 60 * time.Second

	classificationKey = "classification"
	extractionPrefix  = "extraction:"
)

// CacheObserver receives one call per cache lookup.
type CacheObserver interface {
	RuleCacheLookup(kind, outcome string)
}

type CacheOptions struct {
	TTL      time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Observer CacheObserver
}

// Cache keeps compiled rule sets for a short TTL, keyed by the store's
// configuration version. Concurrent misses may reload twice; the last store wins.
type Cache struct {
	repo     ports.RuleRepository
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer CacheObserver

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	version        string
	loadedAt       time.Time
	classification *ClassificationRules
	extraction     []CompiledExtractionRule
}

func NewCache(repo ports.RuleRepository, opts CacheOptions) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		repo:     repo,
		ttl:      ttl,
		now:      now,
		logger:   orDefault(opts.Logger),
		observer: opts.Observer,
		entries:  make(map[string]cacheEntry),
	}
}

func (c *Cache) ClassificationRules(ctx context.Context) (*ClassificationRules, error) {
	version, err := c.repo.ConfigVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rule config version: %w", err)
	}
	if entry, ok := c.lookup(classificationKey, version); ok {
		c.observe("classification", "hit")
		return entry.classification, nil
	}
	c.observe("classification", "miss")

	set, err := c.repo.LoadClassificationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	compiled := CompileClassification(set, version, c.logger)
	c.store(classificationKey, cacheEntry{
		version:        version,
		loadedAt:       c.now(),
		classification: compiled,
	})
	c.logger.Debug("classification_rules_loaded", "version", version, "types", len(compiled.Types))
	return compiled, nil
}

func (c *Cache) ExtractionRules(ctx context.Context, documentTypeID string) ([]CompiledExtractionRule, error) {
	version, err := c.repo.ConfigVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read rule config version: %w", err)
	}
	key := extractionPrefix + documentTypeID
	if entry, ok := c.lookup(key, version); ok {
		c.observe("extraction", "hit")
		return entry.extraction, nil
	}
	c.observe("extraction", "miss")

	raw, err := c.repo.LoadExtractionRules(ctx, documentTypeID)
	if err != nil {
		return nil, fmt.Errorf("load extraction rules for %s: %w", documentTypeID, err)
	}
	compiled := CompileExtraction(raw, c.logger)
	c.store(key, cacheEntry{
		version:    version,
		loadedAt:   c.now(),
		extraction: compiled,
	})
	c.logger.Debug("extraction_rules_loaded", "version", version, "document_type_id", documentTypeID, "rules", len(compiled))
	return compiled, nil
}

// Invalidate drops every cached entry regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	c.observe("all", "invalidate")
	c.logger.Info("rule_cache_invalidated")
}

func (c *Cache) lookup(key, version string) (cacheEntry, bool) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return cacheEntry{}, false
	}
	if entry.version != version {
		return cacheEntry{}, false
	}
	if c.now().Sub(entry.loadedAt) >= c.ttl {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) store(key string, entry cacheEntry) {
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

func (c *Cache) observe(kind, outcome string) {
	if c.observer != nil {
		c.observer.RuleCacheLookup(kind, outcome)
	}
}
