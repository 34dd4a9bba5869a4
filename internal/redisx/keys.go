package redisx

import "time"

const (
	// Cache of order status for fast storefront polling:
	// order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup for consumed lifecycle events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Revoked admin session tokens: admin:revoked:{jti} -> "1"
	KeySessionRevoked = "admin:revoked:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
