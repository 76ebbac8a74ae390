package inappbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NordCoder/Herald/internal/domain/inapp"
	"github.com/NordCoder/Herald/internal/domain/notification"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inappbus_published_total", Help: "Entries appended to the in-app log.",
	})
	mRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inappbus_read_entries_total", Help: "Entries scanned per consumer group.",
	}, []string{"group"})
	mGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inappbus_resync_total", Help: "Reads that hit an evicted position.",
	}, []string{"group"})
)

type Config struct {
	MaxLen       int `mapstructure:"max_len"`
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// Page is one read. Next is the last scanned position, which is also the committed
// offset; it can be ahead of the last returned entry when a user filter hid entries.
type Page struct {
	Entries []inapp.Entry `json:"entries"`
	Next    int64         `json:"next"`
}

// Bus fans in-app entries out to independent consumer groups. Reads never remove entries.
type Bus struct {
	log    inapp.Log
	cfg    Config
	clock  notification.Clock
	logger *zap.Logger

	mu     sync.Mutex
	groups map[string]*sync.Mutex
	subs   map[string]map[chan struct{}]struct{}
}

func New(log inapp.Log, cfg Config, clock notification.Clock, logger *zap.Logger) *Bus {
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 10000
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 1000
	}
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Bus{
		log:    log,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(zap.String("component", "inappbus")),
		groups: make(map[string]*sync.Mutex),
		subs:   make(map[string]map[chan struct{}]struct{}),
	}
}

func (b *Bus) Publish(ctx context.Context, e inapp.Entry) (int64, error) {
	e.PublishedAt = b.clock.Now()
	pos, err := b.log.Append(ctx, &e, b.cfg.MaxLen)
	if err != nil {
		return 0, fmt.Errorf("bus append: %w", err)
	}
	mPublished.Inc()
	b.notify()
	return pos, nil
}

// ReadSince returns entries after the given position, oldest first, and commits the
// group's offset to the last scanned position. Only entries for userID are returned when
// it is set. A position older than the earliest retained one yields *inapp.GapError.
func (b *Bus) ReadSince(ctx context.Context, group string, after int64, limit int, userID string) (Page, error) {
	if group == "" || after < 0 {
		return Page{}, fmt.Errorf("%w: group is required and position must be >= 0", notification.ErrInvalid)
	}
	unlock := b.lockGroup(group)
	defer unlock()
	return b.read(ctx, group, after, limit, userID)
}

// Next continues from the group's committed offset. A group with no offset starts from
// the earliest retained entry.
func (b *Bus) Next(ctx context.Context, group string, limit int, userID string) (Page, error) {
	if group == "" {
		return Page{}, fmt.Errorf("%w: group is required", notification.ErrInvalid)
	}
	unlock := b.lockGroup(group)
	defer unlock()

	after, found, err := b.log.Offset(ctx, group)
	if err != nil {
		return Page{}, fmt.Errorf("bus offset: %w", err)
	}
	if !found {
		earliest, _, err := b.log.Bounds(ctx)
		if err != nil {
			return Page{}, fmt.Errorf("bus bounds: %w", err)
		}
		after = max(earliest-1, 0)
	}
	return b.read(ctx, group, after, limit, userID)
}

// Reset moves the group's offset, typically to GapError.Earliest-1.
func (b *Bus) Reset(ctx context.Context, group string, to int64) error {
	if group == "" || to < 0 {
		return fmt.Errorf("%w: group is required and position must be >= 0", notification.ErrInvalid)
	}
	unlock := b.lockGroup(group)
	defer unlock()
	if err := b.log.Commit(ctx, group, to); err != nil {
		return fmt.Errorf("bus commit: %w", err)
	}
	return nil
}

func (b *Bus) read(ctx context.Context, group string, after int64, limit int, userID string) (Page, error) {
	switch {
	case limit <= 0:
		limit = b.cfg.DefaultLimit
	case limit > b.cfg.MaxLimit:
		limit = b.cfg.MaxLimit
	}

	earliest, _, err := b.log.Bounds(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("bus bounds: %w", err)
	}
	if earliest > 0 && after+1 < earliest {
		return Page{}, b.gap(group, after, earliest)
	}

	entries, err := b.log.Range(ctx, after, limit)
	if err != nil {
		return Page{}, fmt.Errorf("bus range: %w", err)
	}
	// positions are contiguous, so a hole in front means a trim ran between Bounds and Range
	if len(entries) > 0 && entries[0].Position != after+1 {
		return Page{}, b.gap(group, after, entries[0].Position)
	}

	page := Page{Next: after, Entries: make([]inapp.Entry, 0, len(entries))}
	if len(entries) == 0 {
		return page, nil
	}
	page.Next = entries[len(entries)-1].Position
	for _, e := range entries {
		if userID == "" || e.UserID == userID {
			page.Entries = append(page.Entries, e)
		}
	}
	if err := b.log.Commit(ctx, group, page.Next); err != nil {
		return Page{}, fmt.Errorf("bus commit: %w", err)
	}
	mRead.WithLabelValues(group).Add(float64(len(entries)))
	return page, nil
}

func (b *Bus) gap(group string, after, earliest int64) error {
	mGaps.WithLabelValues(group).Inc()
	b.logger.Info("consumer group fell behind eviction",
		zap.String("group", group), zap.Int64("requested", after), zap.Int64("earliest", earliest))
	return &inapp.GapError{Requested: after, Earliest: earliest}
}

func (b *Bus) lockGroup(group string) func() {
	b.mu.Lock()
	m, ok := b.groups[group]
	if !ok {
		m = &sync.Mutex{}
		b.groups[group] = m
	}
	b.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Subscribe returns a channel signalled after every publish through this Bus. Entries
// appended by other processes raise no signal, so long-lived subscribers also poll.
// Signals coalesce; the subscriber is expected to call Next until it drains. cancel
// releases the channel.
func (b *Bus) Subscribe(group string) (signal <-chan struct{}, cancel func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[group]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[group] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[group], ch)
			if len(b.subs[group]) == 0 {
				delete(b.subs, group)
			}
			b.mu.Unlock()
		})
	}
}

func (b *Bus) notify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for ch := range set {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// IsGap reports whether err asks the reader to resync, and from where.
func IsGap(err error) (*inapp.GapError, bool) {
	var gap *inapp.GapError
	if errors.As(err, &gap) {
		return gap, true
	}
	return nil, false
}
