package redis

const (
	// KeyTimestamps holds the full tab id -> last-active map as one JSON
	// blob; the whole map is rewritten on every flush.
	KeyTimestamps = "tabreaper:timestamps"
	// KeyRules is a hash keyed by normalized domain.
	KeyRules = "tabreaper:rules"
	// KeyPolicy holds the runtime eviction policy as a JSON blob.
	KeyPolicy = "tabreaper:policy"
)
