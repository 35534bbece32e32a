package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"lingotutor/logger"
)

// generationTTL bounds how long an idle key's invalidation counter is kept.
// It only has to outlive a single load.
const generationTTL = time.Hour

func generationKey(key string) string {
	return "gen:" + key
}

// RedisStore keeps values in Redis and fans invalidations out over a pub/sub
// channel so every API instance can notify its own subscribers.
type RedisStore struct {
	log     *logger.Logger
	rdb     *redis.Client
	channel string

	mu     sync.RWMutex
	subs   []subscriber
	nextID int

	cancel context.CancelFunc
}

func NewRedisStore(log *logger.Logger, rdb *redis.Client, channel string) *RedisStore {
	return &RedisStore{
		log:     log.With("service", "RedisStore"),
		rdb:     rdb,
		channel: channel,
	}
}

// Start pings Redis and begins forwarding invalidations published by any
// instance to local subscribers. It returns once the subscription is live.
func (s *RedisStore) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	fwdCtx, fwdCancel := context.WithCancel(ctx)
	sub := s.rdb.Subscribe(fwdCtx, s.channel)
	if _, err := sub.Receive(fwdCtx); err != nil {
		fwdCancel()
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	s.cancel = fwdCancel

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-fwdCtx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				s.dispatch(m.Payload)
			}
		}
	}()
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		s.log.Warn("cache get failed", "key", key, "error", err)
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (s *RedisStore) Generation(ctx context.Context, key string) (int64, error) {
	gk := generationKey(key)
	// Created on first use so a prefix scan finds loads that are in flight.
	if err := s.rdb.SetNX(ctx, gk, 0, generationTTL).Err(); err != nil {
		return 0, err
	}
	return s.rdb.Get(ctx, gk).Int64()
}

func (s *RedisStore) SetIfGeneration(ctx context.Context, key string, value any, ttl time.Duration, gen int64) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	gk := generationKey(key)
	stored := false
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gk).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, gk)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
		return false, err
	}
	return stored, nil
}

func (s *RedisStore) Invalidate(ctx context.Context, key string) error {
	gk := generationKey(key)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, gk)
		pipe.Expire(ctx, gk, generationTTL)
		return nil
	})
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, key).Err()
}

// InvalidatePrefix drops every cached key under prefix, including keys that
// are only being loaded right now.
func (s *RedisStore) InvalidatePrefix(ctx context.Context, prefix string) error {
	keys := make(map[string]struct{})
	for _, pattern := range []string{prefix + "*", generationKey(prefix) + "*"} {
		iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			keys[strings.TrimPrefix(iter.Val(), "gen:")] = struct{}{}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	for key := range keys {
		if err := s.Invalidate(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Subscribe(pattern string, cb func(key string)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, pattern: pattern, cb: cb})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *RedisStore) dispatch(key string) {
	s.mu.RLock()
	var cbs []func(string)
	for _, sub := range s.subs {
		if matches(sub.pattern, key) {
			cbs = append(cbs, sub.cb)
		}
	}
	s.mu.RUnlock()
	for _, cb := range cbs {
		cb(key)
	}
}

func (s *RedisStore) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

func (s *RedisStore) Unlock(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.rdb.Close()
}
