package port

import "context"

type IdempotencyLedger interface {
	// Claim reserves key for a new mutation. When the key was already claimed
	// it returns claimed=false and the stored result (nil while in flight).
	Claim(ctx context.Context, key string) (claimed bool, stored []byte, err error)

	// Complete stores the result for later replays of the same key
	Complete(ctx context.Context, key string, result []byte) error

	// Release drops a claim whose mutation failed so it can be retried
	Release(ctx context.Context, key string) error
}
