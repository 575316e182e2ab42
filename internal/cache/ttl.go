package cache

import (
	"strings"
	"time"
)

// DefaultTTL applies when neither an override nor a prefix rule matches.
const DefaultTTL = 5 * time.Minute

// TTLPolicy resolves the freshness window for a key.
type TTLPolicy struct {
	Default  time.Duration
	ByPrefix map[string]time.Duration
}

// Resolve picks the explicit override when positive, else the longest
// matching prefix rule, else the policy default.
func (p TTLPolicy) Resolve(key string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	best, bestLen := time.Duration(0), -1
	for prefix, ttl := range p.ByPrefix {
		if ttl > 0 && strings.HasPrefix(key, prefix) && len(prefix) > bestLen {
			best, bestLen = ttl, len(prefix)
		}
	}
	if bestLen >= 0 {
		return best
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultTTL
}
