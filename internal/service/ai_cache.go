// ai_cache.go — LRU-кэш ответов AI с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/3llimi/innocivic/catalog/internal/api/middleware"
)

// AIResponseCache — кэш ответов модели на одноразовые промпты.
// Ключ — sha256 от типа операции и текста промпта.
type AIResponseCache struct {
	cache *expirable.LRU[string, *AIResult]
}

// NewAIResponseCache создаёт кэш с максимальным размером и TTL записи.
func NewAIResponseCache(maxSize int, ttl time.Duration) *AIResponseCache {
	return &AIResponseCache{
		cache: expirable.NewLRU[string, *AIResult](maxSize, nil, ttl),
	}
}

// Get возвращает ответ из кэша и обновляет метрики hit/miss.
func (c *AIResponseCache) Get(key string) (*AIResult, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		middleware.AICacheTotal.WithLabelValues("hit").Inc()
		return val, true
	}
	middleware.AICacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

// Set добавляет ответ в кэш.
func (c *AIResponseCache) Set(key string, result *AIResult) {
	c.cache.Add(key, result)
}

// Len возвращает число записей в кэше.
func (c *AIResponseCache) Len() int {
	return c.cache.Len()
}

// cacheKey строит ключ кэша для операции op и промпта prompt.
func cacheKey(op, prompt string) string {
	sum := sha256.Sum256([]byte(op + "\x00" + prompt))
	return hex.EncodeToString(sum[:])
}
