package redisx

import "time"

const (
	// Cached category list: catalog:categories -> JSON array of strings
	KeyCategories = "catalog:categories"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLCategories = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
