package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Storage keys, shared with the web dashboard's localStorage layout.
const (
	KeyImages   = "visionfy_generated_images"
	KeyProjects = "visionfy_generation_projects"
	KeySaved    = "visionfy_saved_images"
)

var ErrNotFound = errors.New("not found")

type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
	SortLiked  SortOrder = "liked"
)

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortLiked:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", s)
	}
}

// Cache is the local mirror of generation history: images, projects and
// saved favorites. Every collection is stored as one JSON array and
// rewritten whole on each mutation, so concurrent writers from different
// processes resolve last-write-wins. It is never reconciled with the server.
type Cache struct {
	storage LocalStorage
	bus     *Bus
	now     func() time.Time

	// Serializes read-modify-write within this process.
	mu sync.Mutex
}

func NewCache(storage LocalStorage, bus *Bus) *Cache {
	if bus == nil {
		bus = NewBus()
	}
	return &Cache{storage: storage, bus: bus, now: time.Now}
}

func (c *Cache) Bus() *Bus {
	return c.bus
}

// mutate runs fn under c.mu and notifies event listeners once the lock is
// released, so listeners may call back into the cache.
func (c *Cache) mutate(event string, fn func() error) error {
	err := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		return fn()
	}()
	if err != nil {
		return err
	}
	c.bus.Publish(event)
	return nil
}

// load decodes the collection under key. A missing or corrupt value reads
// as empty; a corrupt one is logged.
func load[T any](ctx context.Context, s LocalStorage, key string) ([]T, error) {
	raw, ok, err := s.GetItem(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []T{}, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		slog.Warn("discarding unreadable local collection", "key", key, "error", err)
		return []T{}, nil
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func store[T any](ctx context.Context, s LocalStorage, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.SetItem(ctx, key, string(b))
}

func indexOf[T any](items []T, match func(T) bool) int {
	for i, it := range items {
		if match(it) {
			return i
		}
	}
	return -1
}

func matchesPrompt(prompt, query string) bool {
	return strings.Contains(strings.ToLower(prompt), strings.ToLower(query))
}

// sortByTime orders items stably by ts. Anything but SortOldest is newest first.
func sortByTime[T any](items []T, order SortOrder, ts func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		if order == SortOldest {
			return ts(items[i]).Before(ts(items[j]))
		}
		return ts(items[i]).After(ts(items[j]))
	})
}
