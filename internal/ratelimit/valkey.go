package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type valkeyStore struct {
	client valkey.Client
}

// NewValkeyStore wraps an established Valkey client so the limiter shares a
// connection with the cache layer. The caller retains ownership of the
// client; Close here is a no-op.
func NewValkeyStore(client valkey.Client) (CounterStore, error) {
	if client == nil {
		return nil, errors.New("ratelimit: valkey client required")
	}
	return &valkeyStore{client: client}, nil
}

func (s *valkeyStore) Incr(ctx context.Context, identity string, window time.Duration) (int64, time.Time, error) {
	if window <= 0 {
		window = time.Second
	}
	key := counterKey(identity)

	count, err := s.client.Do(ctx, s.client.B().Incr().Key(key).Build()).ToInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: valkey incr: %w", err)
	}
	if count == 1 {
		expire := s.client.B().Pexpire().Key(key).Milliseconds(window.Milliseconds()).Build()
		if err := s.client.Do(ctx, expire).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit: valkey pexpire: %w", err)
		}
		return count, time.Now().Add(window), nil
	}

	ttl, err := s.client.Do(ctx, s.client.B().Pttl().Key(key).Build()).ToInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit: valkey pttl: %w", err)
	}
	if ttl < 0 {
		// A writer died between INCR and PEXPIRE; reinstate the window so
		// the counter cannot live forever.
		expire := s.client.B().Pexpire().Key(key).Milliseconds(window.Milliseconds()).Build()
		if err := s.client.Do(ctx, expire).Error(); err != nil {
			return 0, time.Time{}, fmt.Errorf("ratelimit: valkey pexpire repair: %w", err)
		}
		ttl = window.Milliseconds()
	}
	return count, time.Now().Add(time.Duration(ttl) * time.Millisecond), nil
}

func (s *valkeyStore) Peek(ctx context.Context, identity string) (int64, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(counterKey(identity)).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("ratelimit: valkey get: %w", err)
	}
	count, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: valkey parse count: %w", err)
	}
	return count, nil
}

func (s *valkeyStore) Close(context.Context) error {
	return nil
}

func counterKey(identity string) string {
	return "ratelimit:" + identity
}
