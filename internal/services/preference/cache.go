package preference

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/NordCoder/Herald/internal/domain/preference"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var mCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "preference_cache_lookups_total", Help: "Preference cache lookups by result.",
}, []string{"result"})

type cacheEntry struct {
	prefs   *domain.Preferences
	expires time.Time
}

// Cache is a read-through TTL cache over a preference.Repo. Set writes the store first
// and then replaces the cached value, so the writer reads its own write. Absent records
// are cached as nil.
type Cache struct {
	repo domain.Repo
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	gen     map[string]uint64
	group   singleflight.Group
}

var _ domain.Repo = (*Cache)(nil)

func NewCache(repo domain.Repo, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
}

// Get returns domain.ErrNotFound for users without a record.
func (c *Cache) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	gen := c.gen[userID]
	c.mu.Unlock()
	if ok && c.now().Before(e.expires) {
		mCache.WithLabelValues("hit").Inc()
		return found(e.prefs)
	}
	mCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(userID, func() (any, error) {
		p, err := c.repo.Get(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		c.mu.Lock()
		// a Set that landed while loading wins
		if c.gen[userID] == gen {
			c.entries[userID] = cacheEntry{prefs: p.Clone(), expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		mCache.WithLabelValues("error").Inc()
		return nil, err
	}
	return found(v.(*domain.Preferences))
}

func (c *Cache) Set(ctx context.Context, p *domain.Preferences) error {
	if err := c.repo.Set(ctx, p); err != nil {
		return err
	}
	c.mu.Lock()
	c.gen[p.UserID]++
	c.entries[p.UserID] = cacheEntry{prefs: p.Clone(), expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	c.gen[userID]++
	delete(c.entries, userID)
	c.mu.Unlock()
}

func found(p *domain.Preferences) (*domain.Preferences, error) {
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}
