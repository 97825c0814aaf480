package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"compare/internal/domain"
	"compare/internal/infra/logging"
)

const (
	opTimeout  = 1 * time.Second
	defaultTTL = 1 * time.Minute
)

// Cache stores CBOR-encoded results in Redis. A nil *Cache is a valid, disabled cache.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// ComparisonKey addresses the result of method m on the two image payloads.
func ComparisonKey(m domain.Method, img1, img2 []byte) string {
	h := sha256.New()
	h.Write([]byte(m))
	writeChunk(h, img1)
	writeChunk(h, img2)
	return "cmpcache:" + hex.EncodeToString(h.Sum(nil))
}

// PageKey addresses one rendered 1-based page.
func PageKey(pdf []byte, page int) string {
	h := sha256.New()
	writeChunk(h, pdf)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(page))
	h.Write(n[:])
	return "pdfcache:" + hex.EncodeToString(h.Sum(nil))
}

// AllPagesKey addresses the full list of rendered pages of pdf.
func AllPagesKey(pdf []byte) string {
	h := sha256.New()
	writeChunk(h, pdf)
	return "pdfallcache:" + hex.EncodeToString(h.Sum(nil))
}

// length-prefix so that (ab, c) and (a, bc) hash differently
func writeChunk(h interface{ Write([]byte) (int, error) }, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}

// Get decodes the value at key into v and reports whether it was found.
func (c *Cache) Get(ctx context.Context, key string, v any) bool {
	if c == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		logging.Warn("Redis read failed", "error", err)
		return false
	}
	if err := cbor.Unmarshal(raw, v); err != nil {
		logging.Warn("Cached value undecodable", "key", key, "error", err)
		return false
	}
	logging.Info("Cache hit", "key", key)
	return true
}

// Set stores v under key. Failures are logged and otherwise ignored.
func (c *Cache) Set(ctx context.Context, key string, v any) {
	if c == nil {
		return
	}
	raw, err := cbor.Marshal(v)
	if err != nil {
		logging.Warn("Cache encode failed", "key", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logging.Warn("Redis write failed", "error", err)
	}
}
