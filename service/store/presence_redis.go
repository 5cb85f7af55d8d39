package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceMirror mirrors local presence into Redis so tooling and sibling
// processes can see which gateway currently holds a user. Routing never
// reads it; the in-process directory stays authoritative.
//
// Key layout: im:presence:<user> -> gateway id, TTL bounds staleness.
type PresenceMirror struct {
	rdb *redis.Client
	gw  string
	ttl time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewPresenceMirror(ctx context.Context, cfg RedisConfig, gatewayID string, ttl time.Duration) (*PresenceMirror, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &PresenceMirror{rdb: rdb, gw: gatewayID, ttl: ttl}, nil
}

func presenceKey(user string) string { return "im:presence:" + user }

// Online marks the user as held by this gateway and starts the TTL.
func (p *PresenceMirror) Online(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Set(ctx, presenceKey(user), p.gw, p.ttl).Err()
}

// Refresh renews the TTL, called from the heartbeat path.
func (p *PresenceMirror) Refresh(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Expire(ctx, presenceKey(user), p.ttl).Err()
}

// Offline deletes the key immediately instead of waiting for the TTL.
func (p *PresenceMirror) Offline(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup reports which gateway holds the user, if any.
func (p *PresenceMirror) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	if p == nil {
		return "", false, nil
	}
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "presence lookup")
	}
	return val, true, nil
}

func (p *PresenceMirror) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
