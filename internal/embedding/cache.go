package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pksynth/knowledge-synthesizer/internal/logger"
)

// Cached stores vectors in Redis keyed by model and text hash. Redis errors
// are logged and fall through to the wrapped provider.
type Cached struct {
	inner Provider
	rdb   redis.UniversalClient
	ttl   time.Duration
	log   *logger.Logger
}

func NewCached(inner Provider, rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *Cached) Model() string  { return c.inner.Model() }
func (c *Cached) Dimension() int { return c.inner.Dimension() }

func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Cached) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn("embedding cache read failed", "error", err)
		vals = make([]interface{}, len(keys))
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		vec, err := decodeVector([]byte(s))
		if err != nil {
			missIdx = append(missIdx, i)
			continue
		}
		out[i] = vec
	}

	if len(missIdx) == 0 {
		return out, nil
	}

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	fresh, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		pipe.Set(ctx, keys[i], encodeVector(fresh[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}

	c.log.Debug("embedding cache", "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	return out, nil
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.inner.Model() + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.New("corrupt cached vector")
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
