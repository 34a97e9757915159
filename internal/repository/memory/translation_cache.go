package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// TranslationCache remembers translations per message and target language.
type TranslationCache struct {
	cache *cache.Cache
}

func NewTranslationCache(ttl time.Duration) *TranslationCache {
	return &TranslationCache{cache: cache.New(ttl, 2*ttl)}
}

func translationKey(messageID, target string) string {
	return messageID + "|" + target
}

func (c *TranslationCache) Get(messageID, target string) (string, bool) {
	if x, found := c.cache.Get(translationKey(messageID, target)); found {
		return x.(string), true
	}
	return "", false
}

func (c *TranslationCache) Save(messageID, target, text string) {
	c.cache.Set(translationKey(messageID, target), text, cache.DefaultExpiration)
}
