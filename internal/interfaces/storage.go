package interfaces

import (
	"context"
	"time"
)

// MarketCache stores serialized provider responses keyed by request fingerprint.
// A miss returns found=false with a nil error.
type MarketCache interface {
	Get(ctx context.Context, key string) (data []byte, found bool, err error)
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Close() error
}
