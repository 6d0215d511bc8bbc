// Package ratelimit implements two token buckets per API key (text
// and image classes), refilling continuously, sharded by principal hash
// to bound memory and contention.
package ratelimit

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/cespare/xxhash/v2"
)

// Class is the route classification: paths that generate or edit images
// map to Image; everything else maps to Text.
type Class string

const (
	ClassText  Class = "text"
	ClassImage Class = "image"
)

// Config carries the two buckets' capacities (requests/operations per
// minute), matching the ratelimit.* configuration keys.
type Config struct {
	TextPerMinute  int
	ImagePerMinute int
}

func (c Config) withDefaults() Config {
	if c.TextPerMinute <= 0 {
		c.TextPerMinute = 1000
	}

	if c.ImagePerMinute <= 0 {
		c.ImagePerMinute = 10
	}

	return c
}

// Limiter holds the per-principal bucket pairs. Each shard is an
// independent LRU so no single lock serializes every admission check.
type Limiter struct {
	cfg    Config
	shards []*shard
}

type principalBuckets struct {
	text  *rate.Limiter
	image *rate.Limiter
}

type shard struct {
	cache *lru.Cache[string, *principalBuckets]
}

const shardCount = 16

// New constructs a Limiter with shardCount independent LRU caches keyed
// by xxhash of the principal id, per the "sharded by principal hash"
// requirement.
func New(cfg Config) (*Limiter, error) {
	cfg = cfg.withDefaults()

	l := &Limiter{cfg: cfg, shards: make([]*shard, shardCount)}

	for i := range l.shards {
		cache, err := lru.New[string, *principalBuckets](4096)
		if err != nil {
			return nil, err
		}

		l.shards[i] = &shard{cache: cache}
	}

	return l, nil
}

func (l *Limiter) shardFor(principalID string) *shard {
	h := xxhash.Sum64String(principalID)
	return l.shards[h%uint64(shardCount)]
}

func (l *Limiter) bucketsFor(principalID string) *principalBuckets {
	sh := l.shardFor(principalID)

	if b, ok := sh.cache.Get(principalID); ok {
		return b
	}

	b := &principalBuckets{
		text:  rate.NewLimiter(rate.Limit(float64(l.cfg.TextPerMinute)/60), l.cfg.TextPerMinute),
		image: rate.NewLimiter(rate.Limit(float64(l.cfg.ImagePerMinute)/60), l.cfg.ImagePerMinute),
	}
	sh.cache.Add(principalID, b)

	return b
}

// Result is the outcome of an Admit check.
type Result struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Admit removes one token from the bucket matching class for principalID.
// An empty bucket returns Allowed=false with a RetryAfter hint.
// Text and image buckets are fully independent: saturating one never
// blocks the other.
func (l *Limiter) Admit(principalID string, class Class) Result {
	buckets := l.bucketsFor(principalID)

	var limiter *rate.Limiter

	switch class {
	case ClassImage:
		limiter = buckets.image
	default:
		limiter = buckets.text
	}

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return Result{Allowed: false}
	}

	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return Result{Allowed: false, RetryAfter: delay}
	}

	return Result{Allowed: true}
}
