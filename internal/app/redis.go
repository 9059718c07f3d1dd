package app

import "strings"

// redisKeyspace namespaces the service's Redis keys under one prefix.
type redisKeyspace string

func newRedisKeyspace(prefix, fallback string) redisKeyspace {
	trimmed := strings.Trim(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = fallback
	}
	return redisKeyspace(trimmed)
}

func (k redisKeyspace) key(parts ...string) string {
	return strings.Join(append([]string{string(k)}, parts...), ":")
}
