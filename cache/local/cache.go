package local

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
}

type entry struct {
	data     string
	expireAt time.Time // zero = no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// LocalCache is an in-process cache implementing the Cache interface.
// Only string keys carry a TTL; hashes, sets and lists live until deleted.
type LocalCache struct {
	mu     sync.Mutex
	kv     map[string]*entry
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
	zsets  map[string]map[string]float64
	lists  map[string][]string

	gcInterval time.Duration
	stopGC     chan struct{}
	closeOnce  sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := &LocalCache{
		kv:         make(map[string]*entry),
		hashes:     make(map[string]map[string]string),
		sets:       make(map[string]map[string]struct{}),
		zsets:      make(map[string]map[string]float64),
		lists:      make(map[string][]string),
		gcInterval: interval,
		stopGC:     make(chan struct{}),
	}
	go c.runGC()
	return c, nil
}

// Close stops the background GC goroutine.
func (c *LocalCache) Close() {
	c.closeOnce.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

// live returns the entry for key, dropping it if it has expired. c.mu must
// be held.
func (c *LocalCache) live(key string) (*entry, bool) {
	e, ok := c.kv[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(c.kv, key)
		return nil, false
	}
	return e, true
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.kv[key] = &entry{data: value, expireAt: expiry(ttl)}
	c.mu.Unlock()
	return nil
}

// Del removes keys of any kind.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.hashes, k)
		delete(c.sets, k)
		delete(c.zsets, k)
		delete(c.lists, k)
	}
	return nil
}

func (c *LocalCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.kv[key] = &entry{data: value, expireAt: expiry(ttl)}
	return true, nil
}

func (c *LocalCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return ErrNotFound
	}
	e.expireAt = expiry(ttl)
	return nil
}

// ---- Hash ----

func (c *LocalCache) HSet(_ context.Context, key, field, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.hashes[key]
	if h == nil {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (c *LocalCache) HGetAll(_ context.Context, key string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]string, len(c.hashes[key]))
	for f, v := range c.hashes[key] {
		result[f] = v
	}
	return result, nil
}

// HIncrBy adds n to an integer field, treating a missing field as 0.
func (c *LocalCache) HIncrBy(_ context.Context, key, field string, n int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.hashes[key]
	if h == nil {
		h = make(map[string]string)
		c.hashes[key] = h
	}
	var cur int64
	if s, ok := h[field]; ok {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, err
		}
		cur = v
	}
	cur += n
	h[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// ---- Set ----

func (c *LocalCache) SAdd(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sets[key]
	if s == nil {
		s = make(map[string]struct{})
		c.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (c *LocalCache) SRem(_ context.Context, key string, members ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], m)
	}
	return nil
}

func (c *LocalCache) SMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]string, 0, len(c.sets[key]))
	for m := range c.sets[key] {
		result = append(result, m)
	}
	return result, nil
}

// ---- ZSet ----

func (c *LocalCache) ZAdd(_ context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z := c.zsets[key]
	if z == nil {
		z = make(map[string]float64)
		c.zsets[key] = z
	}
	z[member] = score
	return nil
}

// ZRevRange returns members by descending score, ties by descending member
// like Redis.
func (c *LocalCache) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	z := c.zsets[key]
	members := make([]string, 0, len(z))
	for m := range z {
		members = append(members, m)
	}
	slices.SortFunc(members, func(a, b string) int {
		switch {
		case z[a] > z[b]:
			return -1
		case z[a] < z[b]:
			return 1
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	c.mu.Unlock()
	return window(members, start, stop), nil
}

// ---- List ----

func (c *LocalCache) RPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	c.lists[key] = append(c.lists[key], values...)
	c.mu.Unlock()
	return nil
}

// LRange returns a copy of the elements from start to stop inclusive;
// negative indexes count from the end.
func (c *LocalCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(window(c.lists[key], start, stop)), nil
}

func (c *LocalCache) LLen(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.lists[key])), nil
}

// window applies Redis range semantics to s.
func window(s []string, start, stop int64) []string {
	n := int64(len(s))
	if start < 0 {
		start = max(0, n+start)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)
	if start > stop {
		return nil
	}
	return s[start : stop+1]
}
