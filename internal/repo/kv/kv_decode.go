package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkrupp/storefront/internal/infra/logging"
)

// State tells how a Decoded value came to be.
type State int

const (
	// Missing means nothing was stored under the key.
	Missing State = iota
	// Present means the stored value decoded cleanly.
	Present
	// Corrupt means a value was stored but did not decode.
	Corrupt
	// Unavailable means the backend could not be read.
	Unavailable
)

func (s State) String() string {
	switch s {
	case Missing:
		return "missing"
	case Present:
		return "present"
	case Corrupt:
		return "corrupt"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Decoded is the outcome of Load. Value is the zero value unless State is Present.
type Decoded[T any] struct {
	Value T
	State State
}

// Present reports whether Value holds stored data.
func (d Decoded[T]) Present() bool {
	return d.State == Present
}

// Load reads and decodes the JSON value under key. It never fails; callers
// that care about corruption inspect State.
func Load[T any](ctx context.Context, repo Repository, key string, log logging.Logger) Decoded[T] {
	var decoded Decoded[T]

	raw, ok, err := repo.Get(ctx, key)

	switch {
	case err != nil:
		log.WarnContext(ctx, "kv read failed", "key", key, "error", err)

		decoded.State = Unavailable
	case !ok:
		decoded.State = Missing
	default:
		if err := json.Unmarshal(raw, &decoded.Value); err != nil {
			log.WarnContext(ctx, "kv value corrupt", "key", key, "error", err)

			var zero T
			decoded.Value = zero
			decoded.State = Corrupt
		} else {
			decoded.State = Present
		}
	}

	return decoded
}

// Save encodes value as JSON and stores it under key.
func Save[T any](ctx context.Context, repo Repository, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}

	if err := repo.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}

	return nil
}
